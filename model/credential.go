// File: model/credential.go
package model

import "time"

// Credential is the single-slot KYC credential bound 1:1 to an identity.
// At most one slot exists per identity; re-issuance overwrites the slot with
// a fresh TokenID. TokenID zero means "no slot".
type Credential struct {
	ObjectType    string    `json:"objectType"` // Set to the composite key object type (Credential)
	IdentityID    string    `json:"identityId"`
	TokenID       uint64    `json:"tokenId"`
	Region        string    `json:"region"` // Two-letter region code, e.g. "EU"
	CategoryFlags uint32    `json:"categoryFlags"`
	IssuedAt      time.Time `json:"issuedAt"`
	Valid         bool      `json:"valid"`
}

// CredentialStatus is the public answer to a credential check.
type CredentialStatus struct {
	Valid  bool   `json:"valid"`
	Region string `json:"region"`
}
