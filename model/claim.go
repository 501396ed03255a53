// File: model/claim.go
package model

import "time"

// Claim is a time-bounded, typed assertion attached to an identity, issued by
// a verifier. Claims are append-only: revocation sets Valid to false, records
// are never removed. IDs come from a single global counter shared across all
// identities.
type Claim struct {
	ObjectType string    `json:"objectType"` // Set to the composite key object type (Claim)
	ID         uint64    `json:"id"`
	IdentityID string    `json:"identityId"`
	ClaimType  string    `json:"claimType"`
	Value      []byte    `json:"value"`
	Proof      []byte    `json:"proof"` // Opaque; readable only by regulators
	Issuer     string    `json:"issuer"`
	Valid      bool      `json:"valid"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// VerificationMemo caches the outcome of one proof verification. The memo is
// never invalidated by later claim-state changes; it can only be cleared
// explicitly.
type VerificationMemo struct {
	ObjectType string    `json:"objectType"` // Set to the composite key object type (VerificationMemo)
	Key        string    `json:"key"`        // Hex SHA-256 over (identityId, claimType, proof)
	IdentityID string    `json:"identityId"`
	ClaimType  string    `json:"claimType"`
	Valid      bool      `json:"valid"`
	CachedAt   time.Time `json:"cachedAt"`
}
