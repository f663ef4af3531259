package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nchain: polygon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("GASLESS_OUTPUT", "json")
	t.Setenv("GASLESS_CHAIN", "arbitrum")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5, Chain: "base"}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.Chain != "base" {
		t.Fatalf("expected chain from flags, got %s", settings.Chain)
	}
}

func TestLoadSponsorFromEnv(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("GASLESS_SPONSOR_URL", "https://relay.example/v1")
	t.Setenv("GASLESS_SPONSOR_API_KEY", "k-123")
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(tmp, "missing.yaml"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SponsorURL != "https://relay.example/v1" || settings.SponsorAPIKey != "k-123" {
		t.Fatalf("sponsor env not applied: %+v", settings)
	}
}

func TestLoadWaitDefaults(t *testing.T) {
	tmp := t.TempDir()
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(tmp, "missing.yaml"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Confirmations != 1 {
		t.Fatalf("expected 1 confirmation default, got %d", settings.Confirmations)
	}
	if settings.WaitMaxDuration != 30*time.Second || settings.WaitInterval != 5*time.Second {
		t.Fatalf("unexpected wait defaults: %+v", settings)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}
