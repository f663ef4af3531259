package policy

import (
	"strings"

	clierr "github.com/agentwallet-labs/gasless-cli/internal/errors"
)

// CheckActionAllowed gates value-moving actions behind an operator allowlist.
// An empty allowlist permits everything.
func CheckActionAllowed(allowlist []string, action string) error {
	if len(allowlist) == 0 {
		return nil
	}
	norm := normalize(action)
	for _, allowed := range allowlist {
		if normalize(allowed) == norm {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "action blocked by --enable-actions policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
