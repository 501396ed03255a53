package contract

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"zkkyc/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// claimObjectType is used for composite keys and as a 'docType' for CouchDB queries.
// Attributes for composite key: identity ID, zero-padded claim ID. With the
// padding, per-identity key order equals issuance order, which HasValidClaim
// relies on for its deterministic first-match rule.
const claimObjectType = "Claim"

// --- Lifecycle: Claim Operations ---

func (s *ZkKycSmartContract) createClaimCompositeKey(ctx contractapi.TransactionContextInterface, identityID string, claimID uint64) (string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return "", errors.New("identityID cannot be empty")
	}
	return ctx.GetStub().CreateCompositeKey(claimObjectType, []string{identityID, padSequenceID(claimID)})
}

// getClaimByID is an internal helper to retrieve and unmarshal a claim.
// Existence does not require valid=true: revoked claims remain readable.
func (s *ZkKycSmartContract) getClaimByID(ctx contractapi.TransactionContextInterface, identityID string, claimID uint64) (*model.Claim, error) {
	claimKey, err := s.createClaimCompositeKey(ctx, identityID, claimID)
	if err != nil {
		return nil, fmt.Errorf("getClaimByID: failed to create key for claim %d: %w", claimID, err)
	}
	claimBytes, err := ctx.GetStub().GetState(claimKey)
	if err != nil {
		return nil, fmt.Errorf("getClaimByID: failed to read claim %d from ledger: %w", claimID, err)
	}
	if claimBytes == nil {
		return nil, fmt.Errorf("%w: claim %d under identity '%s'", ErrClaimNotFound, claimID, identityID)
	}
	var claim model.Claim
	if err = json.Unmarshal(claimBytes, &claim); err != nil {
		return nil, fmt.Errorf("getClaimByID: failed to unmarshal claim %d: %w", claimID, err)
	}
	return &claim, nil
}

// IssueClaim attaches a new verifiable claim to an identity. Verifier-only.
// The claim id comes from the single global counter shared across all
// identities; the first claim ever issued gets id 0.
func (s *ZkKycSmartContract) IssueClaim(ctx contractapi.TransactionContextInterface,
	identityID, claimType, valueB64, proofB64, expiresAtStr string) (uint64, error) {

	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleVerifier); err != nil {
		return 0, fmt.Errorf("IssueClaim: %w", err)
	}
	issuerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return 0, fmt.Errorf("IssueClaim: failed to get issuer identity: %w", err)
	}

	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return 0, err
	}
	if err := s.validateRequiredString(claimType, "claimType", maxStringInputLength); err != nil {
		return 0, err
	}
	value, err := decodeOpaqueArg(valueB64, "value", true)
	if err != nil {
		return 0, err
	}
	proof, err := decodeOpaqueArg(proofB64, "proof", true)
	if err != nil {
		return 0, err
	}
	expiresAt, err := parseDateString(expiresAtStr, "expiresAt", true)
	if err != nil {
		return 0, err
	}

	identity, err := im.requireActiveIdentity(identityID)
	if err != nil {
		return 0, fmt.Errorf("IssueClaim: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("IssueClaim: %w", err)
	}

	claimID, err := s.nextSequence(ctx, claimCounterName)
	if err != nil {
		return 0, fmt.Errorf("IssueClaim: %w", err)
	}

	claim := model.Claim{
		ObjectType: claimObjectType,
		ID:         claimID,
		IdentityID: identity.ID,
		ClaimType:  claimType,
		Value:      value,
		Proof:      proof,
		Issuer:     issuerFullID,
		Valid:      true,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}
	claimKey, err := s.createClaimCompositeKey(ctx, identity.ID, claimID)
	if err != nil {
		return 0, fmt.Errorf("IssueClaim: %w", err)
	}
	claimBytes, err := json.Marshal(claim)
	if err != nil {
		return 0, fmt.Errorf("IssueClaim: failed to marshal claim %d: %w", claimID, err)
	}
	if err := ctx.GetStub().PutState(claimKey, claimBytes); err != nil {
		return 0, fmt.Errorf("IssueClaim: failed to save claim %d for identity '%s': %w", claimID, identity.ID, err)
	}

	s.emitEvent(ctx, "ClaimIssued", map[string]interface{}{
		"identityId": identity.ID,
		"claimId":    claimID,
		"claimType":  claimType,
		"issuer":     issuerFullID,
		"expiresAt":  expiresAt,
	})
	logger.Infof("Claim %d ('%s') issued to identity '%s' by verifier '%s'", claimID, claimType, identity.ID, issuerFullID)
	return claimID, nil
}

// RevokeClaim permanently invalidates a claim. Allowed for the original
// issuer or any regulator. A claim that is absent or already revoked surfaces
// as not-found, so a second revocation of the same claim fails.
func (s *ZkKycSmartContract) RevokeClaim(ctx contractapi.TransactionContextInterface, identityID string, claimID uint64) error {
	im := NewIdentityManager(ctx)
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("RevokeClaim: failed to get caller identity: %w", err)
	}
	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return err
	}

	claim, err := s.getClaimByID(ctx, identityID, claimID)
	if err != nil {
		return fmt.Errorf("RevokeClaim: %w", err)
	}
	if !claim.Valid {
		return fmt.Errorf("RevokeClaim: %w: claim %d is already revoked", ErrClaimNotFound, claimID)
	}

	if callerFullID != claim.Issuer {
		isRegulator, errRole := im.HasRole(callerFullID, RoleRegulator)
		if errRole != nil {
			return fmt.Errorf("RevokeClaim: failed to check regulator role for '%s': %w", callerFullID, errRole)
		}
		if !isRegulator {
			return fmt.Errorf("RevokeClaim: %w: caller '%s' is neither the issuer nor a regulator", ErrNotAuthorized, callerFullID)
		}
	}

	claim.Valid = false
	claimKey, _ := s.createClaimCompositeKey(ctx, identityID, claimID)
	claimBytes, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("RevokeClaim: failed to marshal claim %d: %w", claimID, err)
	}
	if err := ctx.GetStub().PutState(claimKey, claimBytes); err != nil {
		return fmt.Errorf("RevokeClaim: failed to update claim %d on ledger: %w", claimID, err)
	}

	s.emitEvent(ctx, "ClaimRevoked", map[string]interface{}{
		"identityId": claim.IdentityID,
		"claimId":    claimID,
		"claimType":  claim.ClaimType,
		"revokedBy":  callerFullID,
	})
	logger.Infof("Claim %d ('%s') on identity '%s' revoked by '%s'", claimID, claim.ClaimType, claim.IdentityID, callerFullID)
	return nil
}

// HasValidClaim reports whether the identity currently holds a valid,
// unexpired claim of the given type. Unknown or inactive identities simply
// answer false. The first matching claim in issuance order decides; the scan
// never prefers a newer or longer-lived claim over an earlier one.
func (s *ZkKycSmartContract) HasValidClaim(ctx contractapi.TransactionContextInterface, identityID, claimType string) (bool, error) {
	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return false, err
	}
	if err := s.validateRequiredString(claimType, "claimType", maxStringInputLength); err != nil {
		return false, err
	}

	im := NewIdentityManager(ctx)
	identity, err := im.GetIdentity(identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("HasValidClaim: %w", err)
	}
	if !identity.Active {
		return false, nil
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("HasValidClaim: %w", err)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(claimObjectType, []string{identity.ID})
	if err != nil {
		return false, fmt.Errorf("HasValidClaim: failed to get claims iterator for identity '%s': %w", identity.ID, err)
	}
	defer resultsIterator.Close()

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			return false, fmt.Errorf("HasValidClaim: failed to get next claim for identity '%s': %w", identity.ID, iterErr)
		}
		var claim model.Claim
		if err := json.Unmarshal(queryResponse.Value, &claim); err != nil {
			logger.Warningf("HasValidClaim: Failed to unmarshal claim data for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if claim.ClaimType != claimType {
			continue
		}
		if claim.Valid && claim.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// ReadProof returns the stored proof material of a claim. Regulator-only:
// proof bytes are withheld from every other role, including the issuer and
// the identity owner. Revoked claims remain readable.
func (s *ZkKycSmartContract) ReadProof(ctx contractapi.TransactionContextInterface, identityID string, claimID uint64) (string, error) {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleRegulator); err != nil {
		return "", fmt.Errorf("ReadProof: %w", err)
	}
	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return "", err
	}

	claim, err := s.getClaimByID(ctx, identityID, claimID)
	if err != nil {
		return "", fmt.Errorf("ReadProof: %w", err)
	}
	logger.Debugf("Regulator '%s' read proof of claim %d on identity '%s'", MustGetCallerFullID(ctx), claimID, claim.IdentityID)
	return base64.StdEncoding.EncodeToString(claim.Proof), nil
}

// GetClaim returns a single claim record. The proof field is redacted unless
// the caller is a regulator; everything else about a claim is public.
func (s *ZkKycSmartContract) GetClaim(ctx contractapi.TransactionContextInterface, identityID string, claimID uint64) (*model.Claim, error) {
	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return nil, err
	}
	claim, err := s.getClaimByID(ctx, identityID, claimID)
	if err != nil {
		return nil, fmt.Errorf("GetClaim: %w", err)
	}

	im := NewIdentityManager(ctx)
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("GetClaim: failed to get caller identity: %w", err)
	}
	isRegulator, err := im.HasRole(callerFullID, RoleRegulator)
	if err != nil {
		return nil, fmt.Errorf("GetClaim: failed to check regulator role: %w", err)
	}
	if !isRegulator {
		claim.Proof = nil
	}
	return claim, nil
}
