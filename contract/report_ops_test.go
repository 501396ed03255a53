package contract_test

import (
	"testing"

	"zkkyc/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reportEnv is a bootstrapped environment with alice's identity registered.
func reportEnv(t *testing.T) *testEnv {
	t.Helper()
	env := bootstrappedEnv(t)
	require.NoError(t, env.cc.CreateIdentity(env.as(aliceID), aliceDID))
	env.drainEvents()
	return env
}

func TestFileReportAssignsSequentialIDs(t *testing.T) {
	env := reportEnv(t)

	first, err := env.cc.FileReport(env.as(businessID), aliceDID, "structuring", b64("cipher0"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)

	ev := env.lastEvent()
	assert.Equal(t, "ReportFiled", ev.EventName)
	payload := eventPayload(t, ev)
	assert.Equal(t, aliceDID, payload["subjectIdentityId"])
	assert.Equal(t, "structuring", payload["reportType"])
	assert.Equal(t, businessID, payload["reporter"])

	second, err := env.cc.FileReport(env.as(businessID), aliceDID, "layering", b64("cipher1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second)
}

func TestFileReportBusinessOnly(t *testing.T) {
	env := reportEnv(t)

	for _, caller := range []string{adminID, regulatorID, verifierID, aliceID} {
		_, err := env.cc.FileReport(env.as(caller), aliceDID, "structuring", b64("cipher"))
		assert.ErrorIs(t, err, contract.ErrNotAuthorized, "caller %s", caller)
	}

	// Rejected attempts consumed no ids.
	reportID, err := env.cc.FileReport(env.as(businessID), aliceDID, "structuring", b64("cipher"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), reportID)
}

func TestFileReportUnknownSubject(t *testing.T) {
	env := bootstrappedEnv(t)
	_, err := env.cc.FileReport(env.as(businessID), "did:example:ghost", "structuring", b64("cipher"))
	assert.ErrorIs(t, err, contract.ErrIdentityNotFound)
}

func TestFileReportRequiresDetails(t *testing.T) {
	env := reportEnv(t)
	_, err := env.cc.FileReport(env.as(businessID), aliceDID, "structuring", "")
	assert.Error(t, err)
}

func TestResolveReportOverwriteSemantics(t *testing.T) {
	env := reportEnv(t)
	reportID, err := env.cc.FileReport(env.as(businessID), aliceDID, "structuring", b64("cipher"))
	require.NoError(t, err)
	env.drainEvents()

	require.NoError(t, env.cc.ResolveReport(env.as(regulatorID), reportID, true))
	ev := env.lastEvent()
	assert.Equal(t, "ReportResolved", ev.EventName)
	assert.Equal(t, true, eventPayload(t, ev)["resolved"])

	report, err := env.cc.ReadReport(env.as(regulatorID), reportID)
	require.NoError(t, err)
	assert.True(t, report.Resolved)

	// The flag can be flipped back; last write wins.
	require.NoError(t, env.cc.ResolveReport(env.as(regulatorID), reportID, false))
	report, err = env.cc.ReadReport(env.as(regulatorID), reportID)
	require.NoError(t, err)
	assert.False(t, report.Resolved)
}

func TestResolveReportUnknown(t *testing.T) {
	env := reportEnv(t)
	err := env.cc.ResolveReport(env.as(regulatorID), 42, true)
	assert.ErrorIs(t, err, contract.ErrReportNotFound)
}

func TestResolveReportRegulatorOnly(t *testing.T) {
	env := reportEnv(t)
	reportID, err := env.cc.FileReport(env.as(businessID), aliceDID, "structuring", b64("cipher"))
	require.NoError(t, err)

	for _, caller := range []string{adminID, businessID, verifierID} {
		err := env.cc.ResolveReport(env.as(caller), reportID, true)
		assert.ErrorIs(t, err, contract.ErrNotAuthorized, "caller %s", caller)
	}
}

func TestReadReportRegulatorOnly(t *testing.T) {
	env := reportEnv(t)
	reportID, err := env.cc.FileReport(env.as(businessID), aliceDID, "structuring", b64("cipher"))
	require.NoError(t, err)

	report, err := env.cc.ReadReport(env.as(regulatorID), reportID)
	require.NoError(t, err)
	assert.Equal(t, aliceDID, report.SubjectIdentityID)
	assert.Equal(t, []byte("cipher"), report.EncryptedDetails)
	assert.Equal(t, businessID, report.Reporter)
	assert.False(t, report.Resolved)

	// Not even the filing business can read the record back.
	for _, caller := range []string{adminID, businessID, verifierID, aliceID} {
		_, err := env.cc.ReadReport(env.as(caller), reportID)
		assert.ErrorIs(t, err, contract.ErrNotAuthorized, "caller %s", caller)
	}
}

func TestReadReportUnknown(t *testing.T) {
	env := reportEnv(t)
	_, err := env.cc.ReadReport(env.as(regulatorID), 7)
	assert.ErrorIs(t, err, contract.ErrReportNotFound)
}
