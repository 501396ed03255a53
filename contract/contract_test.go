package contract_test

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"zkkyc/contract"

	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	pb "github.com/hyperledger/fabric-protos-go/peer"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Principals used across the suite. The chaincode treats any caller whose
// client identity resolves as an authenticated principal; roles are granted
// on top.
const (
	adminID     = "x509::CN=admin::OU=client"
	regulatorID = "x509::CN=regulator::OU=client"
	businessID  = "x509::CN=business::OU=client"
	verifierID  = "x509::CN=verifier::OU=client"
	aliceID     = "x509::CN=alice::OU=client"
	bobID       = "x509::CN=bob::OU=client"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// mockClientIdentity is a minimal cid.ClientIdentity for direct-call tests.
type mockClientIdentity struct {
	id    string
	mspID string
}

func (m *mockClientIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockClientIdentity) GetMSPID() (string, error) { return m.mspID, nil }
func (m *mockClientIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (m *mockClientIdentity) AssertAttributeValue(string, string) error { return nil }
func (m *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

// testEnv wires a MockStub and a transaction context around the contract so
// operations can be invoked directly, switching callers between calls.
type testEnv struct {
	t    *testing.T
	stub *shimtest.MockStub
	ctx  *contractapi.TransactionContext
	cc   *contract.ZkKycSmartContract
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stub := shimtest.NewMockStub("zkkyc", nil)
	stub.MockTransactionStart("tx-test")
	stub.TxTimestamp = timestamppb.New(baseTime)
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(stub)
	return &testEnv{t: t, stub: stub, ctx: ctx, cc: &contract.ZkKycSmartContract{}}
}

// as returns the shared context with the caller switched.
func (e *testEnv) as(callerID string) *contractapi.TransactionContext {
	e.ctx.SetClientIdentity(&mockClientIdentity{id: callerID, mspID: "Org1MSP"})
	return e.ctx
}

// setNow moves the transaction timestamp, standing in for the passage of
// ledger time between operations.
func (e *testEnv) setNow(now time.Time) {
	e.stub.TxTimestamp = timestamppb.New(now)
}

// bootstrappedEnv seeds the admin and grants one principal per role.
func bootstrappedEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	require.NoError(t, env.cc.Bootstrap(env.as(adminID)))
	require.NoError(t, env.cc.GrantRole(env.as(adminID), regulatorID, contract.RoleRegulator))
	require.NoError(t, env.cc.GrantRole(env.as(adminID), businessID, contract.RoleBusiness))
	require.NoError(t, env.cc.GrantRole(env.as(adminID), verifierID, contract.RoleVerifier))
	return env
}

func b64(raw string) string {
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func rfc3339(ts time.Time) string {
	return ts.Format(time.RFC3339)
}

// drainEvents empties the stub's event channel and returns the events seen.
func (e *testEnv) drainEvents() []*pb.ChaincodeEvent {
	var events []*pb.ChaincodeEvent
	for {
		select {
		case ev := <-e.stub.ChaincodeEventsChannel:
			events = append(events, ev)
		default:
			return events
		}
	}
}

// lastEvent returns the most recent event, failing if none was emitted.
func (e *testEnv) lastEvent() *pb.ChaincodeEvent {
	e.t.Helper()
	events := e.drainEvents()
	require.NotEmpty(e.t, events, "expected at least one chaincode event")
	return events[len(events)-1]
}

// eventPayload unmarshals an event payload into a generic map.
func eventPayload(t *testing.T, ev *pb.ChaincodeEvent) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	return payload
}
