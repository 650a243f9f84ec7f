// Package config provides configuration loading for signald.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a configuration value failed validation.
// Configuration errors are fatal at startup; they are never a per-event concern.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for the signald daemon.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Server    ServerConfig    `koanf:"server"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Dedup     DedupConfig     `koanf:"dedup"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Quota     QuotaConfig     `koanf:"quota"`
	Tools     ToolsConfig     `koanf:"tools"`
	Reasoning ReasoningConfig `koanf:"reasoning"`
}

// ApplyDefaults sets defaults on every section.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Embedding.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Dedup.ApplyDefaults()
	c.Retrieval.ApplyDefaults()
	c.Quota.ApplyDefaults()
	c.Tools.ApplyDefaults()
	c.Reasoning.ApplyDefaults()
}

// Validate validates every section. Returns the first error found.
func (c *Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"logging", c.Logging.Validate},
		{"server", c.Server.Validate},
		{"embedding", c.Embedding.Validate},
		{"store", c.Store.Validate},
		{"dedup", c.Dedup.Validate},
		{"retrieval", c.Retrieval.Validate},
		{"quota", c.Quota.Validate},
		{"tools", c.Tools.Validate},
		{"reasoning", c.Reasoning.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
	}
	return nil
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format selects the encoder: json or console.
	Format string `koanf:"format"`
}

func (c *LoggingConfig) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Format)
	}
	return nil
}

// ServerConfig controls the ops HTTP surface (health and metrics).
type ServerConfig struct {
	// Addr is the listen address for /healthz and /metrics.
	Addr string `koanf:"addr"`
}

func (c *ServerConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":9480"
	}
}

func (c *ServerConfig) Validate() error { return nil }

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the implementation: "openai" (langchaingo,
	// OpenAI-compatible endpoints) or "tei" (raw TEI /embed endpoint).
	Provider string `koanf:"provider"`

	// BaseURL is the embedding API base URL.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey is the API key (optional for TEI).
	APIKey Secret `koanf:"api_key"`

	// Dimension is the embedding vector size. Must match the model.
	Dimension int `koanf:"dimension"`

	// Timeout bounds a single embed call. Fingerprinting treats a
	// timeout as "no embedding"; it never blocks the pipeline.
	Timeout Duration `koanf:"timeout"`
}

func (c *EmbeddingConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "tei"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(5 * time.Second)
	}
}

func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "openai", "tei":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// StoreConfig configures the ranked memory/fingerprint store.
type StoreConfig struct {
	// Provider selects the backend: "qdrant" (remote gRPC) or
	// "chromem" (embedded, single-node deployments and tests).
	Provider string `koanf:"provider"`

	// Host is the Qdrant gRPC host.
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (6334, not the HTTP port).
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// Path is the chromem persistence directory.
	Path string `koanf:"path"`

	// EventCollection holds event fingerprints for dedup.
	EventCollection string `koanf:"event_collection"`

	// MemoryCollection holds historical analysis outcomes for retrieval.
	MemoryCollection string `koanf:"memory_collection"`

	// HealthInterval is the remote health probe interval.
	HealthInterval Duration `koanf:"health_interval"`

	// DialTimeout bounds the initial connection attempt.
	DialTimeout Duration `koanf:"dial_timeout"`
}

func (c *StoreConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "qdrant"
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Path == "" {
		c.Path = "~/.config/signald/store"
	}
	if c.EventCollection == "" {
		c.EventCollection = "signald_events"
	}
	if c.MemoryCollection == "" {
		c.MemoryCollection = "signald_memories"
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = Duration(30 * time.Second)
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = Duration(10 * time.Second)
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Provider == "qdrant" {
		if c.Host == "" {
			return fmt.Errorf("%w: host required", ErrInvalidConfig)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
		}
	}
	return nil
}

// DedupConfig controls the layered duplicate checks.
type DedupConfig struct {
	// RecencyTTL is the in-memory raw-hash cache lifetime.
	RecencyTTL Duration `koanf:"recency_ttl"`

	// RecencySize caps the in-memory cache entry count.
	RecencySize int `koanf:"recency_size"`

	// SemanticWindow bounds how far back semantic matches are considered.
	SemanticWindow Duration `koanf:"semantic_window"`

	// FormalThreshold is the cosine similarity bar for formal text
	// (wire/announcement sources).
	FormalThreshold float64 `koanf:"formal_threshold"`

	// InformalThreshold is the looser bar for informal chatter.
	InformalThreshold float64 `koanf:"informal_threshold"`

	// LookupTimeout bounds each persistent-store dedup lookup.
	LookupTimeout Duration `koanf:"lookup_timeout"`
}

func (c *DedupConfig) ApplyDefaults() {
	if c.RecencyTTL == 0 {
		c.RecencyTTL = Duration(10 * time.Minute)
	}
	if c.RecencySize == 0 {
		c.RecencySize = 4096
	}
	if c.SemanticWindow == 0 {
		c.SemanticWindow = Duration(72 * time.Hour)
	}
	if c.FormalThreshold == 0 {
		c.FormalThreshold = 0.93
	}
	if c.InformalThreshold == 0 {
		c.InformalThreshold = 0.88
	}
	if c.LookupTimeout == 0 {
		c.LookupTimeout = Duration(3 * time.Second)
	}
}

func (c *DedupConfig) Validate() error {
	if c.FormalThreshold < 0 || c.FormalThreshold > 1 {
		return fmt.Errorf("%w: formal_threshold must be in [0,1]", ErrInvalidConfig)
	}
	if c.InformalThreshold < 0 || c.InformalThreshold > 1 {
		return fmt.Errorf("%w: informal_threshold must be in [0,1]", ErrInvalidConfig)
	}
	if c.InformalThreshold > c.FormalThreshold {
		return fmt.Errorf("%w: informal_threshold cannot exceed formal_threshold", ErrInvalidConfig)
	}
	return nil
}

// RetrievalConfig controls the memory retrieval chain.
type RetrievalConfig struct {
	// Window bounds how old retrieved memories may be.
	Window Duration `koanf:"window"`

	// ConfidenceFloor filters out low-confidence historical entries.
	// Intentionally lenient so cautionary failure cases still surface.
	ConfidenceFloor float64 `koanf:"confidence_floor"`

	// SimilarityThreshold is the minimum vector similarity for a match.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// MaxEntries truncates the merged, ranked result set.
	MaxEntries int `koanf:"max_entries"`

	// SourceTimeout bounds each retrieval source independently.
	SourceTimeout Duration `koanf:"source_timeout"`
}

func (c *RetrievalConfig) ApplyDefaults() {
	if c.Window == 0 {
		c.Window = Duration(30 * 24 * time.Hour)
	}
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = 0.55
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.70
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 5
	}
	if c.SourceTimeout == 0 {
		c.SourceTimeout = Duration(3 * time.Second)
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("%w: confidence_floor must be in [0,1]", ErrInvalidConfig)
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("%w: max_entries must be positive", ErrInvalidConfig)
	}
	return nil
}

// QuotaConfig controls per-tool daily budgets and the result cache.
type QuotaConfig struct {
	// DailyBudgets maps tool name to allowed calls per UTC day.
	DailyBudgets map[string]int `koanf:"daily_budgets"`

	// CacheTTL is the tool result cache lifetime.
	CacheTTL Duration `koanf:"cache_ttl"`

	// RatePerSecond smooths bursts per tool on top of the daily budget.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

func (c *QuotaConfig) ApplyDefaults() {
	if c.DailyBudgets == nil {
		c.DailyBudgets = map[string]int{
			"search":  80,
			"price":   200,
			"macro":   50,
			"onchain": 60,
		}
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = Duration(15 * time.Minute)
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 2
	}
}

func (c *QuotaConfig) Validate() error {
	for tool, budget := range c.DailyBudgets {
		if budget < 0 {
			return fmt.Errorf("%w: negative budget for tool %q", ErrInvalidConfig, tool)
		}
	}
	return nil
}

// ToolsConfig configures the external evidence tool adapters.
// Vendor choice is a config-time decision; each adapter speaks a
// vendor-agnostic HTTP contract.
type ToolsConfig struct {
	Search  ToolEndpoint `koanf:"search"`
	Price   ToolEndpoint `koanf:"price"`
	Macro   ToolEndpoint `koanf:"macro"`
	Onchain ToolEndpoint `koanf:"onchain"`

	// Timeout bounds a single tool fetch.
	Timeout Duration `koanf:"timeout"`
}

// ToolEndpoint is the wiring for one tool adapter.
type ToolEndpoint struct {
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
}

func (c *ToolsConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = Duration(10 * time.Second)
	}
}

func (c *ToolsConfig) Validate() error { return nil }

// ReasoningConfig controls the bounded analysis state machine.
type ReasoningConfig struct {
	// MaxRounds caps Planner->Executor cycles per event.
	MaxRounds int `koanf:"max_rounds"`

	// PlannerTimeout bounds the model-backed planning call.
	PlannerTimeout Duration `koanf:"planner_timeout"`

	// ObserveFloor forces action=observe below this final confidence.
	ObserveFloor float64 `koanf:"observe_floor"`

	// HistoryBar is the similarity above which a historical memory
	// nudges the final confidence toward its outcome.
	HistoryBar float64 `koanf:"history_bar"`

	// Rules is the planner's category rule tier.
	Rules PlannerRuleConfig `koanf:"rules"`

	// Backend configures the LLM used by the Planner.
	Backend BackendConfig `koanf:"backend"`
}

// PlannerRuleConfig maps event categories to planner behavior.
// Categories are the classifier's names (listing, delisting, hack,
// regulation, partnership, macro, airdrop, rumor, other); tools are the
// registry names (search, price, macro, onchain).
type PlannerRuleConfig struct {
	// Blacklist names categories that never spend tool budget; their
	// preliminary stance goes straight to synthesis.
	Blacklist []string `koanf:"blacklist"`

	// Playbook forces tools on the first round per category.
	Playbook map[string][]string `koanf:"playbook"`
}

// knownCategories and knownTools bound the planner rule vocabulary.
var (
	knownCategories = map[string]bool{
		"listing": true, "delisting": true, "hack": true,
		"regulation": true, "partnership": true, "macro": true,
		"airdrop": true, "rumor": true, "other": true,
	}
	knownTools = map[string]bool{
		"search": true, "price": true, "macro": true, "onchain": true,
	}
)

// BackendConfig configures the reasoning LLM backend.
type BackendConfig struct {
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
}

func (c *ReasoningConfig) ApplyDefaults() {
	if c.MaxRounds == 0 {
		c.MaxRounds = 3
	}
	if c.PlannerTimeout == 0 {
		c.PlannerTimeout = Duration(20 * time.Second)
	}
	if c.ObserveFloor == 0 {
		c.ObserveFloor = 0.35
	}
	if c.HistoryBar == 0 {
		c.HistoryBar = 0.85
	}
	if c.Rules.Blacklist == nil {
		// Airdrop/giveaway chatter is farmed engagement bait; it never
		// justifies tool spend.
		c.Rules.Blacklist = []string{"other", "airdrop"}
	}
	if c.Rules.Playbook == nil {
		c.Rules.Playbook = map[string][]string{
			"hack":       {"onchain", "search"},
			"listing":    {"search"},
			"delisting":  {"search"},
			"regulation": {"search"},
		}
	}
	if c.Backend.Model == "" {
		c.Backend.Model = "gpt-4o-mini"
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "https://api.openai.com/v1"
	}
}

func (c *ReasoningConfig) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("%w: max_rounds must be positive", ErrInvalidConfig)
	}
	if c.ObserveFloor < 0 || c.ObserveFloor > 1 {
		return fmt.Errorf("%w: observe_floor must be in [0,1]", ErrInvalidConfig)
	}
	if c.HistoryBar < 0 || c.HistoryBar > 1 {
		return fmt.Errorf("%w: history_bar must be in [0,1]", ErrInvalidConfig)
	}
	for _, cat := range c.Rules.Blacklist {
		if !knownCategories[cat] {
			return fmt.Errorf("%w: unknown category %q in rules.blacklist", ErrInvalidConfig, cat)
		}
	}
	for cat, names := range c.Rules.Playbook {
		if !knownCategories[cat] {
			return fmt.Errorf("%w: unknown category %q in rules.playbook", ErrInvalidConfig, cat)
		}
		for _, name := range names {
			if !knownTools[name] {
				return fmt.Errorf("%w: unknown tool %q in rules.playbook for %q", ErrInvalidConfig, name, cat)
			}
		}
	}
	return nil
}
