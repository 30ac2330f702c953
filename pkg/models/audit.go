package models

import "time"

// AuditEntry records one recommendation attempt end to end.
type AuditEntry struct {
	RequestID   string    `json:"request_id"`
	Model       string    `json:"model"`
	RequestText string    `json:"request_text,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Response    string    `json:"response,omitempty"`
	Outcome     string    `json:"outcome"`
	Confidence  string    `json:"confidence,omitempty"`
	ItemCount   int       `json:"item_count"`
	CostUSD     float64   `json:"cost_usd"`
	TokensUsed  int       `json:"tokens_used"`
	LatencyMs   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"`       // "requests", "prompts", "responses"
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Model     string
	Outcome   string
	Since     time.Time
	RequestID string
	Limit     int
}

// AuditStat holds aggregate audit counts for an outcome/day combination.
type AuditStat struct {
	Outcome string
	Day     string
	Count   int
}
