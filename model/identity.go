// File: model/identity.go
package model

import "time"

// Identity binds a unique identifier string to exactly one owning principal.
// Records are immutable after creation except for Active, which is reserved
// for a future deactivation flow and is not mutated by any current operation.
type Identity struct {
	ObjectType string    `json:"objectType"` // Set to the composite key object type (Identity)
	ID         string    `json:"id"`         // Globally unique identifier string, e.g. "did:x:1"
	Owner      string    `json:"owner"`      // Full X.509 identity string of the owning principal
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}
