package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"zkkyc/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var idLogger = flogging.MustGetLogger("zkkyc.identitymanager")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	identityObjectType   = "Identity"       // Stores Identity records. Attribute for composite key: ID.
	ownerIndexObjectType = "IdentityOwner"  // Maps owner FullID to identity ID. Attribute for composite key: owner FullID.
	roleObjectType       = "RoleAssignment" // One record per grant. Attributes for composite key: role, principal FullID.
)

// Role names recognised by the system. Admin is seeded exactly once at
// bootstrap and is the only role that can grant the other three; it is
// deliberately not grantable itself.
const (
	RoleAdmin     = "admin"
	RoleRegulator = "regulator"
	RoleBusiness  = "business"
	RoleVerifier  = "verifier"
)

// GrantableRoles defines the set of roles an admin may hand out.
// There is no role-revoke operation: the grant lifecycle is strictly additive.
var GrantableRoles = map[string]bool{
	RoleRegulator: true,
	RoleBusiness:  true,
	RoleVerifier:  true,
}

// IdentityManager handles identity registration, role grants and resolution
// of the transacting principal.
type IdentityManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewIdentityManager creates a new instance of IdentityManager.
func NewIdentityManager(ctx contractapi.TransactionContextInterface) *IdentityManager {
	return &IdentityManager{Ctx: ctx}
}

// --- Internal Helper Functions ---

func (im *IdentityManager) getCurrentTxTimestamp() (time.Time, error) {
	ts, err := im.Ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func isValidX509ID(id string) bool {
	// Basic check, can be enhanced if specific X.509 formats are enforced.
	return strings.HasPrefix(id, "x509::") || strings.HasPrefix(id, "eDUwOTo6") // "eDUwOTo6" is "x509::" base64 encoded
}

func (im *IdentityManager) getListOfGrantableRoles() []string {
	keys := make([]string, 0, len(GrantableRoles))
	for k := range GrantableRoles {
		keys = append(keys, k)
	}
	return keys
}

// --- Key Creation Helpers (using Composite Keys) ---

func (im *IdentityManager) createIdentityCompositeKey(identityID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(identityObjectType, []string{identityID})
}

func (im *IdentityManager) createOwnerIndexCompositeKey(ownerFullID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(ownerIndexObjectType, []string{ownerFullID})
}

// Role goes first so that all holders of one role share a key prefix and can
// be found with a partial-key scan (used by AnyAdminExists).
func (im *IdentityManager) createRoleCompositeKey(role, principalFullID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(roleObjectType, []string{role, principalFullID})
}

// --- Caller Identity ---

// GetCurrentIdentityFullID retrieves the full X.509 ID of the current transactor.
func (im *IdentityManager) GetCurrentIdentityFullID() (string, error) {
	clientIdentity := im.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" { // GetID can sometimes return empty string without error if not properly set up
		return "", errors.New("client identity ID from context is empty")
	}
	if !isValidX509ID(id) {
		idLogger.Warningf("Current client ID '%s' does not appear to be a standard X.509 format.", id)
	}
	return id, nil
}

// MustGetCallerFullID is a utility to get the caller's ID, returning a placeholder on error.
// Useful for logging when a full error return isn't desired.
func MustGetCallerFullID(ctx contractapi.TransactionContextInterface) string {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		idLogger.Error("MustGetCallerFullID: Client identity is nil from context. Returning placeholder.")
		return "ERROR_NIL_CLIENT_IDENTITY"
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		idLogger.Errorf("MustGetCallerFullID: Failed to get client identity ID: %v. Returning placeholder.", err)
		return "ERROR_GETTING_CALLER_ID"
	}
	if id == "" {
		idLogger.Error("MustGetCallerFullID: Client identity ID from context is empty. Returning placeholder.")
		return "ERROR_EMPTY_CALLER_ID"
	}
	return id
}

// --- Role Registry ---

// SeedAdmin makes the calling principal the initial admin. It may succeed at
// most once for the lifetime of the ledger: any later call fails regardless
// of who makes it.
func (im *IdentityManager) SeedAdmin() (string, error) {
	anyAdminExists, err := im.AnyAdminExists()
	if err != nil {
		return "", fmt.Errorf("failed to check if any admin exists for SeedAdmin: %w", err)
	}
	if anyAdminExists {
		return "", fmt.Errorf("%w: system already has an admin, bootstrap may not be re-run", ErrNotAuthorized)
	}

	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return "", fmt.Errorf("failed to get caller's FullID for SeedAdmin: %w", err)
	}

	adminKey, err := im.createRoleCompositeKey(RoleAdmin, callerFullID)
	if err != nil {
		return "", fmt.Errorf("failed to create admin role key for '%s': %w", callerFullID, err)
	}
	if err := im.Ctx.GetStub().PutState(adminKey, []byte("true")); err != nil {
		return "", fmt.Errorf("failed to save admin role grant for '%s': %w", callerFullID, err)
	}
	idLogger.Infof("Bootstrap: caller '%s' seeded as the initial admin.", callerFullID)
	return callerFullID, nil
}

// GrantRole assigns a role to a principal. Admin-only. Granting a role the
// principal already holds is a no-op; the returned bool reports whether a new
// grant was actually written.
func (im *IdentityManager) GrantRole(targetFullID, role string) (bool, error) {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return false, fmt.Errorf("failed to get caller's FullID for GrantRole: %w", err)
	}
	isCallerAdmin, err := im.HasRole(callerFullID, RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to verify caller admin status for GrantRole: %w", err)
	}
	if !isCallerAdmin {
		return false, fmt.Errorf("%w: caller '%s' is not an admin and cannot grant roles", ErrNotAuthorized, callerFullID)
	}

	roleLower := strings.ToLower(strings.TrimSpace(role))
	if !GrantableRoles[roleLower] {
		return false, fmt.Errorf("invalid role: '%s'. Grantable roles are: %v", role, im.getListOfGrantableRoles())
	}
	if strings.TrimSpace(targetFullID) == "" {
		return false, errors.New("target principal cannot be empty")
	}

	roleKey, err := im.createRoleCompositeKey(roleLower, targetFullID)
	if err != nil {
		return false, fmt.Errorf("failed to create role key for '%s'/'%s': %w", roleLower, targetFullID, err)
	}
	existing, err := im.Ctx.GetStub().GetState(roleKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking existing grant of '%s' to '%s': %w", roleLower, targetFullID, err)
	}
	if existing != nil {
		idLogger.Infof("Role '%s' already granted to '%s'. No action needed.", roleLower, targetFullID)
		return false, nil
	}

	if err := im.Ctx.GetStub().PutState(roleKey, []byte("true")); err != nil {
		return false, fmt.Errorf("failed to save role grant '%s' for '%s': %w", roleLower, targetFullID, err)
	}
	idLogger.Infof("Role '%s' granted to '%s' by admin '%s'.", roleLower, targetFullID, callerFullID)
	return true, nil
}

// HasRole reports whether a principal holds a role. Unknown principals simply
// hold no roles.
func (im *IdentityManager) HasRole(principalFullID, role string) (bool, error) {
	roleLower := strings.ToLower(strings.TrimSpace(role))
	roleKey, err := im.createRoleCompositeKey(roleLower, principalFullID)
	if err != nil {
		return false, fmt.Errorf("failed to create role key for '%s'/'%s': %w", roleLower, principalFullID, err)
	}
	grantBytes, err := im.Ctx.GetStub().GetState(roleKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking role '%s' for '%s': %w", roleLower, principalFullID, err)
	}
	return grantBytes != nil && string(grantBytes) == "true", nil
}

// RequireRole verifies the current caller holds the required role. Admins get
// no bypass: an admin without the role is still unauthorized, since the
// admin's only privilege is granting roles.
func (im *IdentityManager) RequireRole(requiredRole string) error {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("failed to get current user's FullID for RequireRole: %w", err)
	}
	has, err := im.HasRole(callerFullID, requiredRole)
	if err != nil {
		return fmt.Errorf("error checking role '%s' for current user '%s': %w", requiredRole, callerFullID, err)
	}
	if !has {
		return fmt.Errorf("%w: identity '%s' does not have required role '%s'", ErrNotAuthorized, callerFullID, requiredRole)
	}
	idLogger.Debugf("Role check passed for role '%s' for user '%s'.", requiredRole, callerFullID)
	return nil
}

// AnyAdminExists checks if any admin grant is present on the ledger.
func (im *IdentityManager) AnyAdminExists() (bool, error) {
	iterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(roleObjectType, []string{RoleAdmin})
	if err != nil {
		return false, fmt.Errorf("failed to query admin grants for AnyAdminExists: %w", err)
	}
	defer iterator.Close() // Ensure iterator is closed
	return iterator.HasNext(), nil
}

// --- Identity Registry ---

// CreateIdentity registers a new identity owned by the calling principal.
// There is no role gate: any authenticated principal may register, once.
// Both directions of the owner<->id binding are written so the uniqueness
// checks stay O(1) lookups.
func (im *IdentityManager) CreateIdentity(identityID string) (*model.Identity, error) {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("failed to get caller's FullID for CreateIdentity: %w", err)
	}

	trimmedID := strings.TrimSpace(identityID)
	if trimmedID == "" {
		return nil, errors.New("identity id cannot be empty")
	}
	if len(trimmedID) > maxStringInputLength {
		return nil, fmt.Errorf("identity id exceeds max length %d", maxStringInputLength)
	}

	ownerKey, err := im.createOwnerIndexCompositeKey(callerFullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner index key for '%s': %w", callerFullID, err)
	}
	existingIDForOwner, err := im.Ctx.GetStub().GetState(ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check owner binding for '%s': %w", callerFullID, err)
	}
	if existingIDForOwner != nil {
		return nil, fmt.Errorf("%w: owner '%s' is already bound to identity '%s'", ErrOwnerAlreadyBound, callerFullID, string(existingIDForOwner))
	}

	identityKey, err := im.createIdentityCompositeKey(trimmedID)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity composite key for '%s': %w", trimmedID, err)
	}
	existingIdentityBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check identifier availability for '%s': %w", trimmedID, err)
	}
	if existingIdentityBytes != nil {
		// Identifiers are never reused, even for inactive identities.
		return nil, fmt.Errorf("%w: identifier '%s'", ErrIdentifierTaken, trimmedID)
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return nil, err
	}

	identity := model.Identity{
		ObjectType: identityObjectType,
		ID:         trimmedID,
		Owner:      callerFullID,
		Active:     true,
		CreatedAt:  now,
	}
	identityBytes, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Identity for '%s': %w", trimmedID, err)
	}
	if err := im.Ctx.GetStub().PutState(identityKey, identityBytes); err != nil {
		return nil, fmt.Errorf("failed to save Identity for '%s': %w", trimmedID, err)
	}
	if err := im.Ctx.GetStub().PutState(ownerKey, []byte(trimmedID)); err != nil {
		return nil, fmt.Errorf("failed to save owner mapping '%s' -> '%s' (Identity saved, but owner mapping failed): %w", callerFullID, trimmedID, err)
	}

	idLogger.Infof("Identity '%s' registered for owner '%s'.", trimmedID, callerFullID)
	return &identity, nil
}

// Lookup resolves an owner principal to its identity id. Returns the empty
// string, without error, when the owner has no identity.
func (im *IdentityManager) Lookup(ownerFullID string) (string, error) {
	trimmedOwner := strings.TrimSpace(ownerFullID)
	if trimmedOwner == "" {
		return "", errors.New("owner cannot be empty")
	}
	ownerKey, err := im.createOwnerIndexCompositeKey(trimmedOwner)
	if err != nil {
		return "", fmt.Errorf("failed to create owner index key for '%s': %w", trimmedOwner, err)
	}
	identityIDBytes, err := im.Ctx.GetStub().GetState(ownerKey)
	if err != nil {
		return "", fmt.Errorf("ledger error when querying owner '%s': %w", trimmedOwner, err)
	}
	if identityIDBytes == nil {
		return "", nil
	}
	return string(identityIDBytes), nil
}

// GetIdentity retrieves an identity record by its identifier string.
func (im *IdentityManager) GetIdentity(identityID string) (*model.Identity, error) {
	trimmedID := strings.TrimSpace(identityID)
	if trimmedID == "" {
		return nil, errors.New("identity id cannot be empty")
	}
	identityKey, err := im.createIdentityCompositeKey(trimmedID)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity composite key for '%s': %w", trimmedID, err)
	}
	identityBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving Identity '%s': %w", trimmedID, err)
	}
	if identityBytes == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrIdentityNotFound, trimmedID)
	}
	var identity model.Identity
	if err := json.Unmarshal(identityBytes, &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Identity '%s': %w", trimmedID, err)
	}
	return &identity, nil
}

// requireActiveIdentity fetches an identity and verifies it is active. Shared
// precondition for claim, credential and gateway operations.
func (im *IdentityManager) requireActiveIdentity(identityID string) (*model.Identity, error) {
	identity, err := im.GetIdentity(identityID)
	if err != nil {
		return nil, err
	}
	if !identity.Active {
		return nil, fmt.Errorf("%w: '%s'", ErrIdentityInactive, identity.ID)
	}
	return identity, nil
}
