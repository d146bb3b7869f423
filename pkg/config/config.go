package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full sluice configuration
type Config struct {
	DataDir string `yaml:"dataDir"`

	Log      LogConfig      `yaml:"log"`
	Remote   RemoteConfig   `yaml:"remote"`
	Service  ServiceConfig  `yaml:"service"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Sift     SiftConfig     `yaml:"sift"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Stage1   Stage1Config   `yaml:"stage1"`

	// MetricsAddr, when set, serves Prometheus metrics during run
	MetricsAddr string `yaml:"metricsAddr"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RemoteConfig describes the GPU cracking host
type RemoteConfig struct {
	Host           string   `yaml:"host"`
	WorkDir        string   `yaml:"workDir"`
	SessionPrefix  string   `yaml:"sessionPrefix"`
	CrackerBinary  string   `yaml:"crackerBinary"`
	HashMode       int      `yaml:"hashMode"`
	ConnectTimeout Duration `yaml:"connectTimeout"`
	CommandTimeout Duration `yaml:"commandTimeout"`
	PollInterval   Duration `yaml:"pollInterval"`
	ReconnectCap   Duration `yaml:"reconnectCap"`
	ReconnectLimit Duration `yaml:"reconnectLimit"`
}

// ServiceConfig describes the coordination service
type ServiceConfig struct {
	BaseURL      string   `yaml:"baseURL"`
	APIKey       string   `yaml:"apiKey"`
	SSHHost      string   `yaml:"sshHost"` // for SQL introspection
	PollInterval Duration `yaml:"pollInterval"`
}

// OracleConfig describes the breach-count oracle
type OracleConfig struct {
	BaseURL      string   `yaml:"baseURL"`
	MaxPerBatch  int      `yaml:"maxPerBatch"`
	QueryBatch   int      `yaml:"queryBatch"`
	BatchGap     Duration `yaml:"batchGap"`
	PromoteCount int64    `yaml:"promoteCount"`
	CachePath    string   `yaml:"cachePath"`
}

// Stage1Config names the assets of the fixed universal attack
type Stage1Config struct {
	Wordlist string `yaml:"wordlist"` // local path, uploaded when missing remotely
	Rules    string `yaml:"rules"`
}

// SiftConfig controls the streaming set-difference engine
type SiftConfig struct {
	BatchSize int `yaml:"batchSize"`
}

// AnalyzerConfig exposes the feedback classifier thresholds.
// Defaults are documented in Default(); they are heuristics, not magic.
type AnalyzerConfig struct {
	GlobalEntropyMax float64 `yaml:"globalEntropyMax"`
	RootEntropyMax   float64 `yaml:"rootEntropyMax"`
	MinVowelRatio    float64 `yaml:"minVowelRatio"`
	MinRootLen       int     `yaml:"minRootLen"`
	MinDiscovery     int     `yaml:"minDiscovery"`
	MinUnclassFreq   int     `yaml:"minUnclassFreq"`
	MinUnclassLen    int     `yaml:"minUnclassLen"`
	MinRuleCount     int     `yaml:"minRuleCount"`

	// BaselineWordlist and BaselineRuleFiles anchor deduplication:
	// roots already in the baseline wordlist and rules already in a
	// baseline rule file are never re-emitted.
	BaselineWordlist  string   `yaml:"baselineWordlist"`
	BaselineRuleFiles []string `yaml:"baselineRuleFiles"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Remote: RemoteConfig{
			Host:           "gpu-rig",
			WorkDir:        "/opt/cracking",
			SessionPrefix:  "sluice",
			CrackerBinary:  "hashcat",
			HashMode:       100, // SHA-1
			ConnectTimeout: Duration(10 * time.Second),
			CommandTimeout: Duration(60 * time.Second),
			PollInterval:   Duration(30 * time.Second),
			ReconnectCap:   Duration(30 * time.Second),
			ReconnectLimit: Duration(5 * time.Minute),
		},
		Service: ServiceConfig{
			BaseURL:      "http://localhost:8080/api",
			PollInterval: Duration(60 * time.Second),
		},
		Oracle: OracleConfig{
			BaseURL:      "https://api.pwnedpasswords.com",
			MaxPerBatch:  200,
			QueryBatch:   20,
			BatchGap:     Duration(200 * time.Millisecond),
			PromoteCount: 1000,
		},
		Stage1: Stage1Config{
			Wordlist: "./assets/baseline-wordlist.txt",
			Rules:    "./assets/universal.rule",
		},
		Sift: SiftConfig{
			BatchSize: 1_000_000,
		},
		Analyzer: AnalyzerConfig{
			// 3.8 bits/char separates random from structured globally;
			// short roots additionally need the vowel-ratio guard.
			GlobalEntropyMax: 3.8,
			RootEntropyMax:   2.5,
			MinVowelRatio:    0.25,
			MinRootLen:       3,
			MinDiscovery:     3,
			MinUnclassFreq:   3,
			MinUnclassLen:    5,
			MinRuleCount:     3,
		},
	}
}

// Load reads the YAML config at path, overlaying it onto the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays secrets from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("SLUICE_API_KEY"); v != "" {
		c.Service.APIKey = v
	}
}

// Data-directory layout. All paths derive from DataDir.

func (c *Config) GravelDir() string   { return filepath.Join(c.DataDir, "gravel") }
func (c *Config) SandDir() string     { return filepath.Join(c.DataDir, "sand") }
func (c *Config) PearlsDir() string   { return filepath.Join(c.DataDir, "pearls") }
func (c *Config) DiamondsDir() string { return filepath.Join(c.DataDir, "diamonds") }
func (c *Config) GlassDir() string    { return filepath.Join(c.DataDir, "glass") }
func (c *Config) FeedbackDir() string { return filepath.Join(c.DataDir, "feedback") }

func (c *Config) PearlsFile() string {
	return filepath.Join(c.PearlsDir(), "hash_plaintext_pairs.jsonl")
}

func (c *Config) DiamondsFile() string {
	return filepath.Join(c.DiamondsDir(), "hash_plaintext_pairs.jsonl")
}

func (c *Config) BetaFile() string {
	return filepath.Join(c.FeedbackDir(), "BETA.txt")
}

func (c *Config) RuleFile() string {
	return filepath.Join(c.FeedbackDir(), "unobtainium.rule")
}

func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "sand-state.json")
}

func (c *Config) Stage1StatePath() string {
	return filepath.Join(c.DataDir, "gravel-state.json")
}

func (c *Config) OracleCachePath() string {
	if c.Oracle.CachePath != "" {
		return c.Oracle.CachePath
	}
	return filepath.Join(c.DataDir, "oracle-cache.db")
}
