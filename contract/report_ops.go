package contract

import (
	"encoding/json"
	"fmt"

	"zkkyc/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// reportObjectType is used for composite keys and as a 'docType' for CouchDB
// queries. Attribute for composite key: zero-padded report ID.
const reportObjectType = "Report"

// --- Lifecycle: Report Operations ---

func (s *ZkKycSmartContract) createReportCompositeKey(ctx contractapi.TransactionContextInterface, reportID uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(reportObjectType, []string{padSequenceID(reportID)})
}

// getReportByID is an internal helper to retrieve and unmarshal a report.
func (s *ZkKycSmartContract) getReportByID(ctx contractapi.TransactionContextInterface, reportID uint64) (*model.Report, error) {
	reportKey, err := s.createReportCompositeKey(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("getReportByID: failed to create key for report %d: %w", reportID, err)
	}
	reportBytes, err := ctx.GetStub().GetState(reportKey)
	if err != nil {
		return nil, fmt.Errorf("getReportByID: failed to read report %d from ledger: %w", reportID, err)
	}
	if reportBytes == nil {
		return nil, fmt.Errorf("%w: report %d", ErrReportNotFound, reportID)
	}
	var report model.Report
	if err = json.Unmarshal(reportBytes, &report); err != nil {
		return nil, fmt.Errorf("getReportByID: failed to unmarshal report %d: %w", reportID, err)
	}
	return &report, nil
}

// FileReport files a suspicious-activity report against an identity.
// Business-only. The subject identity must exist but need not be active.
// Reports are append-only and never deleted.
func (s *ZkKycSmartContract) FileReport(ctx contractapi.TransactionContextInterface,
	subjectIdentityID, reportType, encryptedDetailsB64 string) (uint64, error) {

	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleBusiness); err != nil {
		return 0, fmt.Errorf("FileReport: %w", err)
	}
	reporterFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return 0, fmt.Errorf("FileReport: failed to get reporter identity: %w", err)
	}

	if err := s.validateRequiredString(subjectIdentityID, "subjectIdentityID", maxStringInputLength); err != nil {
		return 0, err
	}
	if err := s.validateRequiredString(reportType, "reportType", maxStringInputLength); err != nil {
		return 0, err
	}
	encryptedDetails, err := decodeOpaqueArg(encryptedDetailsB64, "encryptedDetails", true)
	if err != nil {
		return 0, err
	}

	// Existence only: reports may target identities regardless of active state.
	subject, err := im.GetIdentity(subjectIdentityID)
	if err != nil {
		return 0, fmt.Errorf("FileReport: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("FileReport: %w", err)
	}
	reportID, err := s.nextSequence(ctx, reportCounterName)
	if err != nil {
		return 0, fmt.Errorf("FileReport: %w", err)
	}

	report := model.Report{
		ObjectType:        reportObjectType,
		ID:                reportID,
		SubjectIdentityID: subject.ID,
		Reporter:          reporterFullID,
		ReportType:        reportType,
		EncryptedDetails:  encryptedDetails,
		FiledAt:           now,
		Resolved:          false,
	}
	reportKey, err := s.createReportCompositeKey(ctx, reportID)
	if err != nil {
		return 0, fmt.Errorf("FileReport: %w", err)
	}
	reportBytes, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("FileReport: failed to marshal report %d: %w", reportID, err)
	}
	if err := ctx.GetStub().PutState(reportKey, reportBytes); err != nil {
		return 0, fmt.Errorf("FileReport: failed to save report %d: %w", reportID, err)
	}

	s.emitEvent(ctx, "ReportFiled", map[string]interface{}{
		"reportId":          reportID,
		"subjectIdentityId": subject.ID,
		"reportType":        reportType,
		"reporter":          reporterFullID,
	})
	logger.Infof("Report %d ('%s') filed against identity '%s' by '%s'", reportID, reportType, subject.ID, reporterFullID)
	return reportID, nil
}

// ResolveReport sets the resolved flag of a report. Regulator-only, overwrite
// semantics: any regulator may set it again, in either direction, and the
// last write wins.
func (s *ZkKycSmartContract) ResolveReport(ctx contractapi.TransactionContextInterface, reportID uint64, resolved bool) error {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleRegulator); err != nil {
		return fmt.Errorf("ResolveReport: %w", err)
	}

	report, err := s.getReportByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("ResolveReport: %w", err)
	}

	report.Resolved = resolved
	reportKey, _ := s.createReportCompositeKey(ctx, reportID)
	reportBytes, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("ResolveReport: failed to marshal report %d: %w", reportID, err)
	}
	if err := ctx.GetStub().PutState(reportKey, reportBytes); err != nil {
		return fmt.Errorf("ResolveReport: failed to update report %d: %w", reportID, err)
	}

	s.emitEvent(ctx, "ReportResolved", map[string]interface{}{
		"reportId":   reportID,
		"resolved":   resolved,
		"resolvedBy": MustGetCallerFullID(ctx),
	})
	logger.Infof("Report %d resolution set to %t by regulator '%s'", reportID, resolved, MustGetCallerFullID(ctx))
	return nil
}

// ReadReport returns a full report record, encrypted details included.
// Regulator-only: the filing business cannot read its own report back.
func (s *ZkKycSmartContract) ReadReport(ctx contractapi.TransactionContextInterface, reportID uint64) (*model.Report, error) {
	im := NewIdentityManager(ctx)
	if err := im.RequireRole(RoleRegulator); err != nil {
		return nil, fmt.Errorf("ReadReport: %w", err)
	}
	report, err := s.getReportByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("ReadReport: %w", err)
	}
	return report, nil
}
