package flows

import (
	"encoding/hex"
	"math/big"
	"regexp"
	"strings"
)

// errorStringSelector is the 4-byte selector of Error(string), the shape
// solc emits for require(msg) reverts.
const errorStringSelector = "08c379a0"

var revertDataPattern = regexp.MustCompile(`0x08c379a0[0-9a-fA-F]+`)

// decodeRevertReason extracts the human-readable message from an ABI-encoded
// Error(string) payload. It returns "" when the payload is not that shape.
func decodeRevertReason(data string) string {
	clean := strings.TrimPrefix(strings.TrimSpace(data), "0x")
	if !strings.HasPrefix(strings.ToLower(clean), errorStringSelector) {
		return ""
	}
	raw, err := hex.DecodeString(clean[len(errorStringSelector):])
	if err != nil || len(raw) < 64 {
		return ""
	}
	offset := new(big.Int).SetBytes(raw[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(raw)) {
		return ""
	}
	start := offset.Int64()
	strLen := new(big.Int).SetBytes(raw[start : start+32])
	if !strLen.IsInt64() || start+32+strLen.Int64() > int64(len(raw)) {
		return ""
	}
	return string(raw[start+32 : start+32+strLen.Int64()])
}

// humanizeRevert turns a raw sponsor or bundler error into something an
// agent can act on. Encoded Error(string) payloads embedded in the text are
// decoded in place.
func humanizeRevert(errText string) string {
	msg := errText
	if encoded := revertDataPattern.FindString(errText); encoded != "" {
		if reason := decodeRevertReason(encoded); reason != "" {
			msg = reason
		}
	}
	return msg
}

// isAllowanceRevert reports whether a revert message is the ERC-20
// insufficient-allowance class, which has a known remedy.
func isAllowanceRevert(errText string) bool {
	lower := strings.ToLower(humanizeRevert(errText))
	return strings.Contains(lower, "transfer amount exceeds allowance") ||
		strings.Contains(lower, "insufficient allowance")
}
