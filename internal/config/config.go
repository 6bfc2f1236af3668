// Package config decodes, validates, and hot-reloads the on-disk TOML
// configuration and publishes immutable snapshots for the rest of the
// runtime to read.
package config

import "time"

// DEFAULTS AND BOUNDS
//
// Mirrors the spec's data model defaults; callers never need to special
// case a zero value because Load fills these in before validation.
const (
	DefaultTotalTimeoutSeconds    = 60
	DefaultConnectTimeoutSeconds  = 5
	DefaultIdleTimeoutSeconds     = 60
	DefaultPoolIdleTimeoutSeconds = 90
	DefaultPoolMaxIdlePerHost     = 16
	DefaultMaxRetries             = 2
	DefaultRetryBackoffBaseMs     = 50

	DefaultScrollbackLines = 10000

	DefaultBodyPreviewBytes = 2048
	DefaultRotationMaxBytes = 10 * 1024 * 1024
	DefaultRotationMaxFiles = 5

	DefaultDebounce = 200 * time.Millisecond

	DefaultRequestRingSize = 1000
	DefaultOrphanThreshold = 5 * time.Minute
)

// Backend is a configured upstream API endpoint.
type Backend struct {
	ID    string `toml:"id"`
	Label string `toml:"label"`

	BaseURL string `toml:"base_url"`

	// Auth declares exactly one of "forward", "x_api_key", "bearer", or the
	// supplemented "aws_sigv4". APIKey holds the (possibly ${VAR}-templated)
	// credential value for the latter three.
	Auth   string `toml:"auth"`
	APIKey string `toml:"api_key"`

	// AWS SigV4 fields, only meaningful when Auth == "aws_sigv4".
	AWSRegion  string `toml:"aws_region"`
	AWSProfile string `toml:"aws_profile"`

	ReasoningCompat    bool `toml:"reasoning_compat"`
	ReasoningMaxTokens int  `toml:"reasoning_max_tokens"`

	ModelOpus   string `toml:"model_opus"`
	ModelSonnet string `toml:"model_sonnet"`
	ModelHaiku  string `toml:"model_haiku"`

	PriceInputPerMillion  float64 `toml:"price_input_per_million"`
	PriceOutputPerMillion float64 `toml:"price_output_per_million"`
}

// HasModelRemap reports whether the backend declares any family remap.
func (b Backend) HasModelRemap() bool {
	return b.ModelOpus != "" || b.ModelSonnet != "" || b.ModelHaiku != ""
}

// HasPricing reports whether per-million pricing was configured.
func (b Backend) HasPricing() bool {
	return b.PriceInputPerMillion > 0 || b.PriceOutputPerMillion > 0
}

type Defaults struct {
	ActiveBackendID    string `toml:"active_backend_id"`
	TotalTimeoutS      int    `toml:"total_timeout_s"`
	ConnectTimeoutS    int    `toml:"connect_timeout_s"`
	IdleTimeoutS       int    `toml:"idle_timeout_s"`
	PoolIdleTimeoutS   int    `toml:"pool_idle_timeout_s"`
	PoolMaxIdlePerHost int    `toml:"pool_max_idle_per_host"`
	MaxRetries         int    `toml:"max_retries"`
	RetryBackoffBaseMs int    `toml:"retry_backoff_base_ms"`
}

type Proxy struct {
	BindAddr string `toml:"bind_addr"`
	BaseURL  string `toml:"base_url"`
}

type Terminal struct {
	ScrollbackLines int `toml:"scrollback_lines"`
}

type SummarizeConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type ReasoningConfig struct {
	// Mode is one of "strip" or "summarize".
	Mode      string          `toml:"mode"`
	Summarize SummarizeConfig `toml:"summarize"`
}

type RotationConfig struct {
	// Mode is one of "size" or "daily".
	Mode     string `toml:"mode"`
	MaxBytes int64  `toml:"max_bytes"`
	MaxFiles int    `toml:"max_files"`
}

type DebugConfig struct {
	// Level is one of "off", "basic", "verbose", "full".
	Level string `toml:"level"`
	// Format is "human" or "json"; empty means auto-detect from the tty.
	Format           string         `toml:"format"`
	Destination      string         `toml:"destination"` // "stderr", "file", "both"
	FilePath         string         `toml:"file_path"`
	BodyPreviewBytes int            `toml:"body_preview_bytes"`
	HeaderPreview    bool           `toml:"header_preview"`
	FullBody         bool           `toml:"full_body"`
	PrettyPrint      bool           `toml:"pretty_print"`
	Rotation         RotationConfig `toml:"rotation"`
}

type SubAgentConfig struct {
	TeammateBackendID string `toml:"teammate_backend_id"`
	PathPrefix        string `toml:"path_prefix"`
}

// Config is the decoded, not-yet-validated TOML document.
type Config struct {
	Defaults  Defaults        `toml:"defaults"`
	Proxy     Proxy           `toml:"proxy"`
	Terminal  Terminal        `toml:"terminal"`
	Reasoning ReasoningConfig `toml:"reasoning"`
	Debug     DebugConfig     `toml:"debug"`
	SubAgent  SubAgentConfig  `toml:"sub_agent"`
	Backends  []Backend       `toml:"backends"`
}

// applyDefaults fills omitted fields with the documented defaults. Called
// before validation so validation always sees a fully-populated value.
func (c *Config) applyDefaults() {
	if c.Defaults.TotalTimeoutS == 0 {
		c.Defaults.TotalTimeoutS = DefaultTotalTimeoutSeconds
	}
	if c.Defaults.ConnectTimeoutS == 0 {
		c.Defaults.ConnectTimeoutS = DefaultConnectTimeoutSeconds
	}
	if c.Defaults.IdleTimeoutS == 0 {
		c.Defaults.IdleTimeoutS = DefaultIdleTimeoutSeconds
	}
	if c.Defaults.PoolIdleTimeoutS == 0 {
		c.Defaults.PoolIdleTimeoutS = DefaultPoolIdleTimeoutSeconds
	}
	if c.Defaults.PoolMaxIdlePerHost == 0 {
		c.Defaults.PoolMaxIdlePerHost = DefaultPoolMaxIdlePerHost
	}
	if c.Defaults.MaxRetries == 0 {
		c.Defaults.MaxRetries = DefaultMaxRetries
	}
	if c.Defaults.RetryBackoffBaseMs == 0 {
		c.Defaults.RetryBackoffBaseMs = DefaultRetryBackoffBaseMs
	}
	if c.Terminal.ScrollbackLines == 0 {
		c.Terminal.ScrollbackLines = DefaultScrollbackLines
	}
	if c.Debug.Level == "" {
		c.Debug.Level = "basic"
	}
	if c.Debug.Destination == "" {
		c.Debug.Destination = "stderr"
	}
	if c.Debug.BodyPreviewBytes == 0 {
		c.Debug.BodyPreviewBytes = DefaultBodyPreviewBytes
	}
	if c.Debug.Rotation.Mode == "" {
		c.Debug.Rotation.Mode = "size"
	}
	if c.Debug.Rotation.MaxBytes == 0 {
		c.Debug.Rotation.MaxBytes = DefaultRotationMaxBytes
	}
	if c.Debug.Rotation.MaxFiles == 0 {
		c.Debug.Rotation.MaxFiles = DefaultRotationMaxFiles
	}
	if c.Reasoning.Mode == "" {
		c.Reasoning.Mode = "strip"
	}
	if c.SubAgent.PathPrefix == "" && c.SubAgent.TeammateBackendID != "" {
		c.SubAgent.PathPrefix = "/teammate"
	}
	if c.Proxy.BindAddr == "" {
		c.Proxy.BindAddr = "127.0.0.1:0"
	}
}

// BackendByID returns the backend with the given id, if configured.
func (c *Config) BackendByID(id string) (Backend, bool) {
	for _, b := range c.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return Backend{}, false
}

// validate checks the invariants in the data model. Called after
// applyDefaults so every field examined here is already populated.
func (c *Config) validate(path string) error {
	if len(c.Backends) == 0 {
		return validateErr(path, "at least one backend must be configured")
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.ID == "" {
			return validateErr(path, "backend with empty id")
		}
		if seen[b.ID] {
			return validateErr(path, "duplicate backend id "+b.ID)
		}
		seen[b.ID] = true
		if b.BaseURL == "" {
			return validateErr(path, "backend "+b.ID+" missing base_url")
		}
		switch b.Auth {
		case "", "forward", "x_api_key", "bearer", "aws_sigv4":
		default:
			return validateErr(path, "backend "+b.ID+" has unknown auth kind "+b.Auth)
		}
	}

	if c.Defaults.ActiveBackendID == "" {
		return validateErr(path, "defaults.active_backend_id is required")
	}
	if !seen[c.Defaults.ActiveBackendID] {
		return validateErr(path, "defaults.active_backend_id "+c.Defaults.ActiveBackendID+" does not reference a configured backend")
	}

	if c.SubAgent.TeammateBackendID != "" && !seen[c.SubAgent.TeammateBackendID] {
		return validateErr(path, "sub_agent.teammate_backend_id "+c.SubAgent.TeammateBackendID+" does not reference a configured backend")
	}

	switch c.Reasoning.Mode {
	case "strip", "summarize":
	default:
		return validateErr(path, "reasoning.mode must be \"strip\" or \"summarize\", got "+c.Reasoning.Mode)
	}
	if c.Reasoning.Mode == "summarize" {
		s := c.Reasoning.Summarize
		if s.BaseURL == "" || s.Model == "" {
			return validateErr(path, "reasoning.mode=summarize requires a fully populated summarize section")
		}
	}

	switch c.Debug.Level {
	case "off", "basic", "verbose", "full":
	default:
		return validateErr(path, "debug.level must be one of off, basic, verbose, full")
	}

	return nil
}
