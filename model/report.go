// File: model/report.go
package model

import "time"

// Report is a business-filed suspicious-activity allegation against an
// identity. Reports are append-only; Resolved is the only mutable field and
// may be overwritten by any regulator, last write wins.
type Report struct {
	ObjectType        string    `json:"objectType"` // Set to the composite key object type (Report)
	ID                uint64    `json:"id"`
	SubjectIdentityID string    `json:"subjectIdentityId"`
	Reporter          string    `json:"reporter"` // Full X.509 identity string of the filing principal
	ReportType        string    `json:"reportType"`
	EncryptedDetails  []byte    `json:"encryptedDetails"` // Opaque; never interpreted on-chain
	FiledAt           time.Time `json:"filedAt"`
	Resolved          bool      `json:"resolved"`
}
