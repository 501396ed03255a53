package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"zkkyc/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// credentialObjectType is used for composite keys and as a 'docType' for
// CouchDB queries. Attribute for composite key: identity ID. One slot per
// identity: re-issuance overwrites, history is not retained.
const credentialObjectType = "Credential"

// --- Lifecycle: Credential Operations (single-slot KYC variant) ---

func (s *ZkKycSmartContract) createCredentialCompositeKey(ctx contractapi.TransactionContextInterface, identityID string) (string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return "", errors.New("identityID cannot be empty")
	}
	return ctx.GetStub().CreateCompositeKey(credentialObjectType, []string{identityID})
}

// getCredentialByIdentity is an internal helper to retrieve the credential
// slot for an identity. nil bytes means the slot was never filled.
func (s *ZkKycSmartContract) getCredentialByIdentity(ctx contractapi.TransactionContextInterface, identityID string) (*model.Credential, error) {
	credentialKey, err := s.createCredentialCompositeKey(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("getCredentialByIdentity: failed to create key for identity '%s': %w", identityID, err)
	}
	credentialBytes, err := ctx.GetStub().GetState(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("getCredentialByIdentity: failed to read credential for identity '%s': %w", identityID, err)
	}
	if credentialBytes == nil {
		return nil, nil
	}
	var credential model.Credential
	if err = json.Unmarshal(credentialBytes, &credential); err != nil {
		return nil, fmt.Errorf("getCredentialByIdentity: failed to unmarshal credential for identity '%s': %w", identityID, err)
	}
	return &credential, nil
}

// IssueCredential binds the single-slot KYC credential to an identity.
// Regulator-only. Token ids are globally monotonic starting at 1; zero is
// reserved as the no-slot sentinel. Issuing over an existing slot overwrites
// it with the fresh token id.
func (s *ZkKycSmartContract) IssueCredential(ctx contractapi.TransactionContextInterface,
	identityID, region string, categoryFlags uint32) (uint64, error) {

	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleRegulator); err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return 0, err
	}
	if err := validateRegionCode(region); err != nil {
		return 0, err
	}

	identity, err := im.requireActiveIdentity(identityID)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	tokenSeq, err := s.nextSequence(ctx, credentialTokenCounterName)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	tokenID := tokenSeq + 1

	credential := model.Credential{
		ObjectType:    credentialObjectType,
		IdentityID:    identity.ID,
		TokenID:       tokenID,
		Region:        region,
		CategoryFlags: categoryFlags,
		IssuedAt:      now,
		Valid:         true,
	}
	credentialKey, err := s.createCredentialCompositeKey(ctx, identity.ID)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: %w", err)
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return 0, fmt.Errorf("IssueCredential: failed to marshal credential for identity '%s': %w", identity.ID, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return 0, fmt.Errorf("IssueCredential: failed to save credential for identity '%s': %w", identity.ID, err)
	}

	s.emitEvent(ctx, "CredentialIssued", map[string]interface{}{
		"identityId": identity.ID,
		"tokenId":    tokenID,
		"region":     region,
		"issuedBy":   MustGetCallerFullID(ctx),
	})
	logger.Infof("Credential token %d (region '%s') issued to identity '%s'", tokenID, region, identity.ID)
	return tokenID, nil
}

// RevokeCredential invalidates the credential slot of an identity.
// Regulator-only. The slot stays occupied but invalid; a later re-issuance
// overwrites it with a new token.
func (s *ZkKycSmartContract) RevokeCredential(ctx contractapi.TransactionContextInterface, identityID, reasonCode string) error {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleRegulator); err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}
	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(reasonCode, "reasonCode", maxStringInputLength); err != nil {
		return err
	}

	credential, err := s.getCredentialByIdentity(ctx, identityID)
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}
	if credential == nil || credential.TokenID == 0 {
		return fmt.Errorf("RevokeCredential: %w: no credential slot for identity '%s'", ErrCredentialNotFound, identityID)
	}

	credential.Valid = false
	credentialKey, _ := s.createCredentialCompositeKey(ctx, identityID)
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("RevokeCredential: failed to marshal credential for identity '%s': %w", identityID, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return fmt.Errorf("RevokeCredential: failed to update credential for identity '%s': %w", identityID, err)
	}

	s.emitEvent(ctx, "CredentialRevoked", map[string]interface{}{
		"identityId": credential.IdentityID,
		"tokenId":    credential.TokenID,
		"reasonCode": reasonCode,
		"revokedBy":  MustGetCallerFullID(ctx),
	})
	logger.Infof("Credential token %d on identity '%s' revoked (reason '%s')", credential.TokenID, credential.IdentityID, reasonCode)
	return nil
}

// CheckCredential answers the public credential question for an identity:
// (valid, region). An empty slot answers (false, ""). The slot is bound 1:1
// to the identity for its whole existence, so no ownership argument exists.
func (s *ZkKycSmartContract) CheckCredential(ctx contractapi.TransactionContextInterface, identityID string) (*model.CredentialStatus, error) {
	logger.Debugf("Chaincode Call: CheckCredential for identity '%s'", identityID)
	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return nil, err
	}
	credential, err := s.getCredentialByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("CheckCredential: %w", err)
	}
	if credential == nil || credential.TokenID == 0 {
		return &model.CredentialStatus{Valid: false, Region: ""}, nil
	}
	return &model.CredentialStatus{Valid: credential.Valid, Region: credential.Region}, nil
}
