package policy

import "testing"

func TestCheckActionAllowed(t *testing.T) {
	if err := CheckActionAllowed(nil, "smart_swap"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckActionAllowed([]string{"smart_swap"}, "smart_swap"); err != nil {
		t.Fatalf("expected action to be allowed: %v", err)
	}
	if err := CheckActionAllowed([]string{"get_balances"}, "smart_swap"); err == nil {
		t.Fatal("expected action to be blocked")
	}
	if err := CheckActionAllowed([]string{" Smart_Swap "}, "smart_swap"); err != nil {
		t.Fatalf("allowlist matching should be case-insensitive: %v", err)
	}
}
