package generation

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Payload is a provider document whose shape is not known in advance.
// Fields are read through gjson paths instead of a fixed schema.
type Payload json.RawMessage

// MarshalJSON embeds the document verbatim.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return []byte(p), nil
}

// String returns the value at path when it is a non-empty string.
func (p Payload) String(path string) (string, bool) {
	res := gjson.GetBytes(p, path)
	if res.Type != gjson.String {
		return "", false
	}
	v := strings.TrimSpace(res.Str)
	return v, v != ""
}

// State reads the job state from the first populated of "state" or "status".
func (p Payload) State() string {
	for _, path := range stateFields {
		if v, ok := p.String(path); ok {
			return v
		}
	}
	return ""
}

var stateFields = []string{"state", "status"}

// Provider-defined terminal tokens, matched case-sensitively.
var (
	successStates = map[string]struct{}{
		"completed": {},
		"succeeded": {},
		"COMPLETED": {},
		"OK":        {},
	}
	failureStates = map[string]struct{}{
		"failed": {},
		"error":  {},
		"FAILED": {},
		"ERROR":  {},
	}
)

func isSuccess(state string) bool {
	_, ok := successStates[state]
	return ok
}

func isFailure(state string) bool {
	_, ok := failureStates[state]
	return ok
}
