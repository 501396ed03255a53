package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"zkkyc/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// memoObjectType is used for composite keys and as a 'docType' for CouchDB
// queries. Attribute for composite key: memo key (hex digest).
const memoObjectType = "VerificationMemo"

// --- Lifecycle: ZK Verification Gateway ---
//
// The gateway adapts an external proof-verification capability to a boolean
// check against the claim store. In this minimal contract the capability
// reduces to HasValidClaim; a stronger verifier can replace verifyAgainstClaims
// without changing the operation surface.
//
// Results are memoized per (identityId, claimType, proof). The memo is an
// idempotent cache with no invalidation: a claim revoked after a successful
// check keeps answering true for the same inputs until the memo entry is
// cleared by hand. That staleness window is inherited behavior, kept on
// purpose; the memo is therefore exposed as its own inspectable, clearable
// store rather than hidden inside the gateway.

func (s *ZkKycSmartContract) createMemoCompositeKey(ctx contractapi.TransactionContextInterface, memoKey string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(memoObjectType, []string{memoKey})
}

// VerificationMemoKey derives the memo key for one verification input set.
// Length prefixes keep distinct inputs from colliding on concatenation.
func VerificationMemoKey(identityID, claimType string, proof []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s", len(identityID), identityID)
	fmt.Fprintf(h, "%d:%s", len(claimType), claimType)
	fmt.Fprintf(h, "%d:", len(proof))
	h.Write(proof)
	return hex.EncodeToString(h.Sum(nil))
}

// verifyAgainstClaims is the minimal external-verifier stand-in: the proof
// bytes are not interpreted, the decision is entirely the claim store's.
func (s *ZkKycSmartContract) verifyAgainstClaims(ctx contractapi.TransactionContextInterface, identityID, claimType string) (bool, error) {
	return s.HasValidClaim(ctx, identityID, claimType)
}

// VerifyProof checks a zero-knowledge proof of a claim for an identity.
// Business-only. A memoized result for the same inputs is returned verbatim,
// whatever the claim state has become since.
func (s *ZkKycSmartContract) VerifyProof(ctx contractapi.TransactionContextInterface,
	identityID, claimType, proofB64 string) (bool, error) {

	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleBusiness); err != nil {
		return false, fmt.Errorf("VerifyProof: %w", err)
	}

	if err := s.validateRequiredString(identityID, "identityID", maxStringInputLength); err != nil {
		return false, err
	}
	if err := s.validateRequiredString(claimType, "claimType", maxStringInputLength); err != nil {
		return false, err
	}
	proof, err := decodeOpaqueArg(proofB64, "proof", true)
	if err != nil {
		return false, err
	}

	memoKey := VerificationMemoKey(identityID, claimType, proof)
	ledgerKey, err := s.createMemoCompositeKey(ctx, memoKey)
	if err != nil {
		return false, fmt.Errorf("VerifyProof: failed to create memo key: %w", err)
	}
	memoBytes, err := ctx.GetStub().GetState(ledgerKey)
	if err != nil {
		return false, fmt.Errorf("VerifyProof: failed to read memo '%s': %w", memoKey, err)
	}
	if memoBytes != nil {
		var memo model.VerificationMemo
		if err := json.Unmarshal(memoBytes, &memo); err != nil {
			return false, fmt.Errorf("VerifyProof: failed to unmarshal memo '%s': %w", memoKey, err)
		}
		logger.Debugf("VerifyProof: memo hit '%s' for identity '%s' type '%s' -> %t", memoKey, identityID, claimType, memo.Valid)
		return memo.Valid, nil
	}

	valid, err := s.verifyAgainstClaims(ctx, identityID, claimType)
	if err != nil {
		return false, fmt.Errorf("VerifyProof: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return false, fmt.Errorf("VerifyProof: %w", err)
	}
	memo := model.VerificationMemo{
		ObjectType: memoObjectType,
		Key:        memoKey,
		IdentityID: identityID,
		ClaimType:  claimType,
		Valid:      valid,
		CachedAt:   now,
	}
	newMemoBytes, err := json.Marshal(memo)
	if err != nil {
		return false, fmt.Errorf("VerifyProof: failed to marshal memo '%s': %w", memoKey, err)
	}
	if err := ctx.GetStub().PutState(ledgerKey, newMemoBytes); err != nil {
		return false, fmt.Errorf("VerifyProof: failed to save memo '%s': %w", memoKey, err)
	}

	logger.Infof("VerifyProof: identity '%s' type '%s' verified=%t (memoized as '%s')", identityID, claimType, valid, memoKey)
	return valid, nil
}

// GetVerificationMemo returns one memo entry by its key. Open query: the memo
// holds only the boolean outcome and the public inputs, never proof material.
func (s *ZkKycSmartContract) GetVerificationMemo(ctx contractapi.TransactionContextInterface, memoKey string) (*model.VerificationMemo, error) {
	if err := s.validateRequiredString(memoKey, "memoKey", maxStringInputLength); err != nil {
		return nil, err
	}
	ledgerKey, err := s.createMemoCompositeKey(ctx, memoKey)
	if err != nil {
		return nil, fmt.Errorf("GetVerificationMemo: failed to create memo key: %w", err)
	}
	memoBytes, err := ctx.GetStub().GetState(ledgerKey)
	if err != nil {
		return nil, fmt.Errorf("GetVerificationMemo: failed to read memo '%s': %w", memoKey, err)
	}
	if memoBytes == nil {
		return nil, fmt.Errorf("verification memo '%s' does not exist", memoKey)
	}
	var memo model.VerificationMemo
	if err := json.Unmarshal(memoBytes, &memo); err != nil {
		return nil, fmt.Errorf("GetVerificationMemo: failed to unmarshal memo '%s': %w", memoKey, err)
	}
	return &memo, nil
}

// ClearVerificationMemo deletes one memo entry, forcing the next VerifyProof
// for those inputs to consult the claim store again. Admin-only: this is the
// manual escape hatch from the staleness window.
func (s *ZkKycSmartContract) ClearVerificationMemo(ctx contractapi.TransactionContextInterface, memoKey string) error {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleAdmin); err != nil {
		return fmt.Errorf("ClearVerificationMemo: %w", err)
	}
	if err := s.validateRequiredString(memoKey, "memoKey", maxStringInputLength); err != nil {
		return err
	}
	ledgerKey, err := s.createMemoCompositeKey(ctx, memoKey)
	if err != nil {
		return fmt.Errorf("ClearVerificationMemo: failed to create memo key: %w", err)
	}
	memoBytes, err := ctx.GetStub().GetState(ledgerKey)
	if err != nil {
		return fmt.Errorf("ClearVerificationMemo: failed to read memo '%s': %w", memoKey, err)
	}
	if memoBytes == nil {
		return fmt.Errorf("verification memo '%s' does not exist", memoKey)
	}
	if err := ctx.GetStub().DelState(ledgerKey); err != nil {
		return fmt.Errorf("ClearVerificationMemo: failed to delete memo '%s': %w", memoKey, err)
	}
	logger.Infof("Verification memo '%s' cleared by admin '%s'", memoKey, MustGetCallerFullID(ctx))
	return nil
}
