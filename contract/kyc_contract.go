package contract

import (
	"fmt"

	"zkkyc/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("zkkyc.contract")

// ZkKycSmartContract provides the role-gated verifiable-credential lifecycle:
// self-owned identities, verifier-issued claims, the single-slot KYC
// credential variant, zero-knowledge verification checks and the
// suspicious-activity report ledger.
// @contract:ZkKycSmartContract
type ZkKycSmartContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
// It's a lifecycle method of the contract.
func (s *ZkKycSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("ZkKycSmartContract Instantiated/Upgraded")
}

// --- Bootstrap, Roles & Identities (Delegating to IdentityManager) ---

// Bootstrap seeds the calling principal as the single initial admin. It can
// succeed at most once; re-running it is an error no matter who calls.
func (s *ZkKycSmartContract) Bootstrap(ctx contractapi.TransactionContextInterface) error {
	logger.Infof("Chaincode Call: Bootstrap by '%s'", MustGetCallerFullID(ctx))
	adminFullID, err := NewIdentityManager(ctx).SeedAdmin()
	if err != nil {
		return err
	}
	s.emitEvent(ctx, "RoleGranted", map[string]interface{}{
		"principal": adminFullID,
		"role":      RoleAdmin,
		"grantedBy": adminFullID,
	})
	return nil
}

// GrantRole hands a role to a principal. Admin-only, idempotent: granting an
// already-held role succeeds silently and emits nothing.
func (s *ZkKycSmartContract) GrantRole(ctx contractapi.TransactionContextInterface, principalFullID, role string) error {
	logger.Infof("Chaincode Call: GrantRole '%s' to '%s'", role, principalFullID)
	granted, err := NewIdentityManager(ctx).GrantRole(principalFullID, role)
	if err != nil {
		return err
	}
	if granted {
		s.emitEvent(ctx, "RoleGranted", map[string]interface{}{
			"principal": principalFullID,
			"role":      role,
			"grantedBy": MustGetCallerFullID(ctx),
		})
	}
	return nil
}

// HasRole reports whether a principal holds a role. Open query.
func (s *ZkKycSmartContract) HasRole(ctx contractapi.TransactionContextInterface, principalFullID, role string) (bool, error) {
	logger.Debugf("Chaincode Call: HasRole '%s' for '%s'", role, principalFullID)
	return NewIdentityManager(ctx).HasRole(principalFullID, role)
}

// CreateIdentity registers a new self-owned identity for the caller. No role
// is required; the uniqueness invariants (one identity per owner, one owner
// per identifier, forever) are enforced by the IdentityManager.
func (s *ZkKycSmartContract) CreateIdentity(ctx contractapi.TransactionContextInterface, identityID string) error {
	logger.Infof("Chaincode Call: CreateIdentity '%s'", identityID)
	identity, err := NewIdentityManager(ctx).CreateIdentity(identityID)
	if err != nil {
		return err
	}
	s.emitEvent(ctx, "IdentityCreated", map[string]interface{}{
		"identityId": identity.ID,
		"owner":      identity.Owner,
		"createdAt":  identity.CreatedAt,
	})
	return nil
}

// LookupIdentity resolves an owner principal to its identity id; the empty
// string means the owner has never registered.
func (s *ZkKycSmartContract) LookupIdentity(ctx contractapi.TransactionContextInterface, ownerFullID string) (string, error) {
	logger.Debugf("Chaincode Call: LookupIdentity for owner '%s'", ownerFullID)
	return NewIdentityManager(ctx).Lookup(ownerFullID)
}

// GetIdentity returns the identity record for an identifier string.
func (s *ZkKycSmartContract) GetIdentity(ctx contractapi.TransactionContextInterface, identityID string) (*model.Identity, error) {
	logger.Debugf("Chaincode Call: GetIdentity '%s'", identityID)
	identity, err := NewIdentityManager(ctx).GetIdentity(identityID)
	if err != nil {
		return nil, fmt.Errorf("GetIdentity: %w", err)
	}
	return identity, nil
}
