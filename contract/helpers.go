package contract

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxOpaqueInputLength = 16384 // proofs and encrypted report details are opaque blobs
)

// counterObjectType stores the monotonic sequence counters (claim ids, report
// ids, credential token ids). Attribute for composite key: counter name.
const counterObjectType = "Counter"

// Counter names. Each is a single global sequence; increments happen under
// the same transaction serialization as every other write.
const (
	claimCounterName           = "claimId"
	reportCounterName          = "reportId"
	credentialTokenCounterName = "credentialTokenId"
)

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
func (s *ZkKycSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// nextSequence returns the next value of a named global counter and advances
// it. The first call for a name returns 0. All-or-nothing semantics come from
// the transaction: a later failure in the same operation also discards the
// counter write, so ids are only ever consumed by committed operations.
func (s *ZkKycSmartContract) nextSequence(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	counterKey, err := ctx.GetStub().CreateCompositeKey(counterObjectType, []string{name})
	if err != nil {
		return 0, fmt.Errorf("failed to create counter key for '%s': %w", name, err)
	}
	var current uint64
	counterBytes, err := ctx.GetStub().GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("ledger error reading counter '%s': %w", name, err)
	}
	if counterBytes != nil {
		current, err = strconv.ParseUint(string(counterBytes), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter '%s' value '%s': %w", name, string(counterBytes), err)
		}
	}
	if err := ctx.GetStub().PutState(counterKey, []byte(strconv.FormatUint(current+1, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance counter '%s': %w", name, err)
	}
	return current, nil
}

// padSequenceID renders a sequence id with fixed width so that composite-key
// iteration order matches numeric (and therefore issuance) order.
func padSequenceID(id uint64) string {
	return fmt.Sprintf("%012d", id)
}

// --- Validation Helper Functions ---

func (s *ZkKycSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

func (s *ZkKycSmartContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

// decodeOpaqueArg decodes a base64 transaction argument carrying an opaque
// byte field (claim value, proof, encrypted report details). The content is
// never interpreted; only presence is checked at this boundary.
func decodeOpaqueArg(encoded, field string, required bool) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		if required {
			return nil, fmt.Errorf("%s cannot be empty", field)
		}
		return []byte{}, nil
	}
	if len(trimmed) > maxOpaqueInputLength {
		return nil, fmt.Errorf("%s exceeds max encoded length %d", field, maxOpaqueInputLength)
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 in %s: %w", field, err)
	}
	return decoded, nil
}

func parseDateString(str, field string, required bool) (time.Time, error) {
	sTrimmed := strings.TrimSpace(str)
	if sTrimmed == "" {
		if required {
			return time.Time{}, fmt.Errorf("%s is a required date field and cannot be empty", field)
		}
		return time.Time{}, nil // Return zero time if optional and empty
	}
	t, err := time.Parse(time.RFC3339, sTrimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid format for %s (expected RFC3339 'YYYY-MM-DDTHH:MM:SSZ'): %w", field, err)
	}
	return t, nil
}

// validateRegionCode enforces the two-letter uppercase region format.
func validateRegionCode(region string) error {
	if len(region) != 2 {
		return errors.New("region must be a two-letter code")
	}
	for _, r := range region {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("region '%s' must be two uppercase ASCII letters", region)
		}
	}
	return nil
}

// --- Event Emission ---

// emitEvent sends a chaincode event. Emission is fire-and-forget: a failure
// is logged and never fails the causing operation.
func (s *ZkKycSmartContract) emitEvent(ctx contractapi.TransactionContextInterface, eventName string, payload map[string]interface{}) {
	for k, v := range payload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.Format(time.RFC3339)
		}
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitEvent: Failed to marshal payload for event '%s': %v", eventName, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitEvent: Failed to set event '%s': %v", eventName, errSet)
	}
}
