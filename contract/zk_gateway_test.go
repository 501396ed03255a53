package contract_test

import (
	"testing"
	"time"

	"zkkyc/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyProofAgainstValidClaim(t *testing.T) {
	env, _ := claimEnv(t)

	valid, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = env.cc.VerifyProof(env.as(businessID), aliceDID, "residency", b64("zkproof"))
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyProofBusinessOnly(t *testing.T) {
	env, _ := claimEnv(t)

	for _, caller := range []string{adminID, regulatorID, verifierID, aliceID} {
		_, err := env.cc.VerifyProof(env.as(caller), aliceDID, "kyc", b64("zkproof"))
		assert.ErrorIs(t, err, contract.ErrNotAuthorized, "caller %s", caller)
	}
}

func TestVerifyProofMemoizesPerInputSet(t *testing.T) {
	env, claimID := claimEnv(t)

	valid, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.True(t, valid)

	// The claim is revoked, but the memo for the same inputs still answers
	// true: memo hits are returned verbatim.
	require.NoError(t, env.cc.RevokeClaim(env.as(regulatorID), aliceDID, claimID))
	valid, err = env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.True(t, valid)

	// Different proof bytes form a different input set and get a fresh check.
	valid, err = env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("other-proof"))
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyProofMemoOutlivesExpiry(t *testing.T) {
	env, _ := claimEnv(t)

	valid, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.True(t, valid)

	env.setNow(baseTime.Add(2 * time.Hour))
	valid, err = env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestVerifyProofNegativeResultsAreMemoizedToo(t *testing.T) {
	env := bootstrappedEnv(t)
	require.NoError(t, env.cc.CreateIdentity(env.as(aliceID), aliceDID))

	// No claim yet: the check fails and the failure is cached.
	valid, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = env.cc.IssueClaim(env.as(verifierID),
		aliceDID, "kyc", b64("v"), b64("zkproof"), rfc3339(baseTime.Add(time.Hour)))
	require.NoError(t, err)

	valid, err = env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestGetVerificationMemoIsOpen(t *testing.T) {
	env, _ := claimEnv(t)
	_, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)

	memoKey := contract.VerificationMemoKey(aliceDID, "kyc", []byte("zkproof"))
	memo, err := env.cc.GetVerificationMemo(env.as(aliceID), memoKey)
	require.NoError(t, err)
	assert.Equal(t, aliceDID, memo.IdentityID)
	assert.Equal(t, "kyc", memo.ClaimType)
	assert.True(t, memo.Valid)
	assert.Equal(t, baseTime, memo.CachedAt.UTC())
}

func TestGetVerificationMemoUnknownKey(t *testing.T) {
	env := bootstrappedEnv(t)
	_, err := env.cc.GetVerificationMemo(env.as(aliceID), "deadbeef")
	assert.Error(t, err)
}

func TestClearVerificationMemoForcesRecheck(t *testing.T) {
	env, claimID := claimEnv(t)

	valid, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, env.cc.RevokeClaim(env.as(regulatorID), aliceDID, claimID))

	memoKey := contract.VerificationMemoKey(aliceDID, "kyc", []byte("zkproof"))
	require.NoError(t, env.cc.ClearVerificationMemo(env.as(adminID), memoKey))

	// Without the stale memo the revocation is finally visible.
	valid, err = env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestClearVerificationMemoAdminOnly(t *testing.T) {
	env, _ := claimEnv(t)
	_, err := env.cc.VerifyProof(env.as(businessID), aliceDID, "kyc", b64("zkproof"))
	require.NoError(t, err)

	memoKey := contract.VerificationMemoKey(aliceDID, "kyc", []byte("zkproof"))
	for _, caller := range []string{regulatorID, businessID, verifierID, aliceID} {
		err := env.cc.ClearVerificationMemo(env.as(caller), memoKey)
		assert.ErrorIs(t, err, contract.ErrNotAuthorized, "caller %s", caller)
	}
}

func TestClearVerificationMemoUnknownKey(t *testing.T) {
	env := bootstrappedEnv(t)
	err := env.cc.ClearVerificationMemo(env.as(adminID), "deadbeef")
	assert.Error(t, err)
}
