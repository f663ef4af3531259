package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath    string
	JSON          bool
	Plain         bool
	Select        string
	ResultsOnly   bool
	EnableActions string
	Strict        bool
	Timeout       string
	Retries       int
	Chain         string
	RPCURL        string
	SponsorURL    string
	BundlerURL    string
	NoJournal     bool
	Verbose       bool
}

type Settings struct {
	OutputMode    string
	SelectFields  []string
	ResultsOnly   bool
	EnableActions []string
	Strict        bool
	Verbose       bool
	Timeout       time.Duration
	Retries       int

	Chain  string
	RPCURL string

	SponsorURL     string
	SponsorAPIKey  string
	AccountAddress string
	BundlerURL     string

	SwapBaseURL   string
	BridgeBaseURL string
	SlippageBps   int64

	JournalEnabled  bool
	JournalPath     string
	JournalLockPath string

	Confirmations   int
	WaitMaxDuration time.Duration
	WaitInterval    time.Duration
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Strict  *bool  `yaml:"strict"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Chain   string `yaml:"chain"`
	RPCURL  string `yaml:"rpc_url"`
	Sponsor struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		Account   string `yaml:"account"`
	} `yaml:"sponsor"`
	Bundler struct {
		URL string `yaml:"url"`
	} `yaml:"bundler"`
	Services struct {
		Swap struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"swap"`
		Bridge struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"bridge"`
		SlippageBps *int64 `yaml:"slippage_bps"`
	} `yaml:"services"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Wait struct {
		Confirmations *int   `yaml:"confirmations"`
		MaxDuration   string `yaml:"max_duration"`
		Interval      string `yaml:"interval"`
	} `yaml:"wait"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.Confirmations < 1 {
		settings.Confirmations = 1
	}
	if settings.WaitMaxDuration <= 0 {
		settings.WaitMaxDuration = 30 * time.Second
	}
	if settings.WaitInterval <= 0 {
		settings.WaitInterval = 5 * time.Second
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	journalPath, lockPath, err := defaultJournalPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		Chain:           "base",
		SlippageBps:     50,
		JournalEnabled:  true,
		JournalPath:     journalPath,
		JournalLockPath: lockPath,
		Confirmations:   1,
		WaitMaxDuration: 30 * time.Second,
		WaitInterval:    5 * time.Second,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gasless", "config.yaml"), nil
}

func defaultJournalPaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "gasless")
	return filepath.Join(dir, "operations.db"), filepath.Join(dir, "operations.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Chain != "" {
		settings.Chain = cfg.Chain
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Sponsor.URL != "" {
		settings.SponsorURL = cfg.Sponsor.URL
	}
	if cfg.Sponsor.APIKey != "" {
		settings.SponsorAPIKey = cfg.Sponsor.APIKey
	}
	if cfg.Sponsor.APIKeyEnv != "" {
		settings.SponsorAPIKey = os.Getenv(cfg.Sponsor.APIKeyEnv)
	}
	if cfg.Sponsor.Account != "" {
		settings.AccountAddress = cfg.Sponsor.Account
	}
	if cfg.Bundler.URL != "" {
		settings.BundlerURL = cfg.Bundler.URL
	}
	if cfg.Services.Swap.BaseURL != "" {
		settings.SwapBaseURL = cfg.Services.Swap.BaseURL
	}
	if cfg.Services.Bridge.BaseURL != "" {
		settings.BridgeBaseURL = cfg.Services.Bridge.BaseURL
	}
	if cfg.Services.SlippageBps != nil {
		settings.SlippageBps = *cfg.Services.SlippageBps
	}
	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	if cfg.Wait.Confirmations != nil {
		settings.Confirmations = *cfg.Wait.Confirmations
	}
	if cfg.Wait.MaxDuration != "" {
		d, err := time.ParseDuration(cfg.Wait.MaxDuration)
		if err != nil {
			return fmt.Errorf("config wait.max_duration: %w", err)
		}
		settings.WaitMaxDuration = d
	}
	if cfg.Wait.Interval != "" {
		d, err := time.ParseDuration(cfg.Wait.Interval)
		if err != nil {
			return fmt.Errorf("config wait.interval: %w", err)
		}
		settings.WaitInterval = d
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("GASLESS_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("GASLESS_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Strict = b
		}
	}
	if v := os.Getenv("GASLESS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("GASLESS_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("GASLESS_CHAIN"); v != "" {
		settings.Chain = v
	}
	if v := os.Getenv("GASLESS_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("GASLESS_SPONSOR_URL"); v != "" {
		settings.SponsorURL = v
	}
	if v := os.Getenv("GASLESS_SPONSOR_API_KEY"); v != "" {
		settings.SponsorAPIKey = v
	}
	if v := os.Getenv("GASLESS_ACCOUNT"); v != "" {
		settings.AccountAddress = v
	}
	if v := os.Getenv("GASLESS_BUNDLER_URL"); v != "" {
		settings.BundlerURL = v
	}
	if v := os.Getenv("GASLESS_SWAP_BASE_URL"); v != "" {
		settings.SwapBaseURL = v
	}
	if v := os.Getenv("GASLESS_BRIDGE_BASE_URL"); v != "" {
		settings.BridgeBaseURL = v
	}
	if v := os.Getenv("GASLESS_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.SlippageBps = n
		}
	}
	if v := os.Getenv("GASLESS_NO_JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.JournalEnabled = !b
		}
	}
	if v := os.Getenv("GASLESS_JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv("GASLESS_JOURNAL_LOCK_PATH"); v != "" {
		settings.JournalLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableActions) != "" {
		parts := strings.Split(flags.EnableActions, ",")
		allowed := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v != "" {
				allowed = append(allowed, v)
			}
		}
		settings.EnableActions = allowed
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Verbose {
		settings.Verbose = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if strings.TrimSpace(flags.Chain) != "" {
		settings.Chain = strings.TrimSpace(flags.Chain)
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if strings.TrimSpace(flags.SponsorURL) != "" {
		settings.SponsorURL = strings.TrimSpace(flags.SponsorURL)
	}
	if strings.TrimSpace(flags.BundlerURL) != "" {
		settings.BundlerURL = strings.TrimSpace(flags.BundlerURL)
	}
	if flags.NoJournal {
		settings.JournalEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
