package contract

import "errors"

// Sentinel errors for the conditions callers branch on. Operations wrap these
// with fmt.Errorf("%w", ...) and context; callers test with errors.Is.
var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrClaimNotFound      = errors.New("claim not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrReportNotFound     = errors.New("report not found")
	ErrOwnerAlreadyBound  = errors.New("owner already bound to an identity")
	ErrIdentifierTaken    = errors.New("identifier already taken")
	ErrNotAuthorized      = errors.New("unauthorized")
	ErrIdentityInactive   = errors.New("identity inactive")
)
