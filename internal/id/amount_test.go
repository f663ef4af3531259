package id

import "testing"

func TestNormalizeAmountBaseUnits(t *testing.T) {
	base, dec, err := NormalizeAmount("5000000", "", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "5000000" || dec != "5" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountDecimal(t *testing.T) {
	base, dec, err := NormalizeAmount("", "1.25", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount failed: %v", err)
	}
	if base != "1250000" || dec != "1.25" {
		t.Fatalf("unexpected result: base=%s dec=%s", base, dec)
	}
}

func TestNormalizeAmountValidation(t *testing.T) {
	if _, _, err := NormalizeAmount("10", "1", 6); err == nil {
		t.Fatal("expected mutual exclusivity error")
	}
	if _, _, err := NormalizeAmount("", "1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if got := FormatDecimalCompat("0", 6); got != "0" {
		t.Fatalf("unexpected zero format: %s", got)
	}
}

func TestDecimalToBase(t *testing.T) {
	n, err := DecimalToBase("0.5", 18)
	if err != nil {
		t.Fatalf("DecimalToBase failed: %v", err)
	}
	if n.String() != "500000000000000000" {
		t.Fatalf("unexpected base units: %s", n.String())
	}
	if _, err := DecimalToBase("0", 18); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := DecimalToBase("1e18", 18); err == nil {
		t.Fatal("expected error for scientific notation")
	}
}

func TestValidatePositiveDecimal(t *testing.T) {
	if err := ValidatePositiveDecimal("2.50"); err != nil {
		t.Fatalf("ValidatePositiveDecimal failed: %v", err)
	}
	if err := ValidatePositiveDecimal("0.000"); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if err := ValidatePositiveDecimal("-1"); err == nil {
		t.Fatal("expected error for negative amount")
	}
}
