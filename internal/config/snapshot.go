package config

import "time"

// Snapshot is an immutable, fully-validated view of the configuration.
// The Store publishes new snapshots atomically; a reader holds one for the
// lifetime of a single request and is never affected by a later reload.
type Snapshot struct {
	cfg        *Config
	loadedAt   time.Time
	sourcePath string
}

func newSnapshot(cfg *Config, path string) *Snapshot {
	return &Snapshot{cfg: cfg, loadedAt: time.Now(), sourcePath: path}
}

func (s *Snapshot) Config() *Config { return s.cfg }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) SourcePath() string { return s.sourcePath }

func (s *Snapshot) Defaults() Defaults { return s.cfg.Defaults }

func (s *Snapshot) Proxy() Proxy { return s.cfg.Proxy }

func (s *Snapshot) Debug() DebugConfig { return s.cfg.Debug }

func (s *Snapshot) Reasoning() ReasoningConfig { return s.cfg.Reasoning }

func (s *Snapshot) SubAgent() SubAgentConfig { return s.cfg.SubAgent }

func (s *Snapshot) Backends() []Backend { return s.cfg.Backends }

func (s *Snapshot) BackendByID(id string) (Backend, bool) { return s.cfg.BackendByID(id) }

func (s *Snapshot) TotalTimeout() time.Duration {
	return time.Duration(s.cfg.Defaults.TotalTimeoutS) * time.Second
}

func (s *Snapshot) ConnectTimeout() time.Duration {
	return time.Duration(s.cfg.Defaults.ConnectTimeoutS) * time.Second
}

func (s *Snapshot) IdleTimeout() time.Duration {
	return time.Duration(s.cfg.Defaults.IdleTimeoutS) * time.Second
}

func (s *Snapshot) PoolIdleTimeout() time.Duration {
	return time.Duration(s.cfg.Defaults.PoolIdleTimeoutS) * time.Second
}
