package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "gasless"}
	child := &cobra.Command{Use: "ops", Short: "operation tracking"}
	leaf := &cobra.Command{Use: "wait", Short: "wait for confirmation"}
	leaf.Flags().Int("confirmations", 1, "confirmations to wait for")
	child.AddCommand(leaf)
	root.AddCommand(child)

	s, err := Build(root, "ops wait")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "gasless ops wait" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "confirmations" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
}

func TestBuildSchemaUnknownCommand(t *testing.T) {
	root := &cobra.Command{Use: "gasless"}
	if _, err := Build(root, "no such path"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}
