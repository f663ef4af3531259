package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("gasless ops status"); got != "ops status" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestSplitCSV(t *testing.T) {
	items := splitCSV("USDC, dai ,")
	if len(items) != 2 || items[0] != "usdc" || items[1] != "dai" {
		t.Fatalf("unexpected split: %#v", items)
	}
}

func TestCommandActionMapping(t *testing.T) {
	cases := map[string]string{
		"transfer":          "transfer",
		"swap":              "smart_swap",
		"bridge":            "smart_bridge",
		"disperse":          "disperse",
		"allowance approve": "approve_token",
		"ops status":        "ops status",
	}
	for path, want := range cases {
		if got := commandAction(path); got != want {
			t.Fatalf("commandAction(%q) = %q, want %q", path, got, want)
		}
	}
	if isValueMovingPath("ops status") || isValueMovingPath("account balances") {
		t.Fatal("read-only paths must not be gated by the allowlist")
	}
	if !isValueMovingPath("transfer") || !isValueMovingPath("allowance approve") {
		t.Fatal("value-moving paths must be gated by the allowlist")
	}
}

func TestRunnerActionsList(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"actions", "list", "--results-only", "--no-journal"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout.String())
	}
	if len(out) < 10 {
		t.Fatalf("expected the full action catalog, got %d entries", len(out))
	}
}

func TestRunnerActionsDescribeIncludesSchema(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"actions", "describe", "transfer", "--results-only", "--no-journal"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout.String())
	}
	if out["name"] != "transfer" {
		t.Fatalf("unexpected action name: %v", out["name"])
	}
	if _, ok := out["schema"].(map[string]any); !ok {
		t.Fatalf("describe should embed the argument schema, got %v", out["schema"])
	}
}

func TestRunnerBlockedActionEnvelope(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"transfer", "--token", "USDC", "--to", "0x2222222222222222222222222222222222222222", "--amount", "1", "--enable-actions", "smart_swap", "--no-journal"})
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr.String())
	}
	var env map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr.String())
	}
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	errBody, _ := env["error"].(map[string]any)
	if errBody["type"] != "action_blocked" {
		t.Fatalf("expected action_blocked error type, got %v", errBody["type"])
	}
}

func TestRunnerMissingSponsorIsCapabilityError(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	t.Setenv("GASLESS_SPONSOR_URL", "")
	t.Setenv("GASLESS_SPONSOR_API_KEY", "")
	code := r.Run([]string{"account", "address", "--no-journal"})
	if code != 20 {
		t.Fatalf("expected exit 20, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "sponsor") {
		t.Fatalf("error should name the missing sponsor configuration, got %s", stderr.String())
	}
}

func TestRunnerSchemaCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"schema", "ops", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse schema output: %v output=%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), "status") {
		t.Fatal("ops schema should include the status subcommand")
	}
}

func TestRunnerSchemaMarksSubmittingCommands(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"schema", "transfer", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"submits": true`) {
		t.Fatalf("transfer schema should be marked as submitting: %s", stdout.String())
	}
}
