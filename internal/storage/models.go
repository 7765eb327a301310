package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrValidation = errors.New("validation failed")
)

type ApiKey struct {
	ID         int64
	Name       string
	KeyValue   string
	Provider   string
	IsActive   bool
	LastTested *time.Time
	TestStatus *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ApiKeyPatch is the allow-list of mutable api_keys columns. Nil fields
// are left unchanged.
type ApiKeyPatch struct {
	KeyValue *string
	IsActive *bool
}

type Model struct {
	ID          string
	Emoji       string
	Name        string
	Description string
	Category    string
	Provider    string
	ModelName   string
	IsEnabled   bool
	IsDefault   bool
	Priority    int
	CreatedAt   time.Time
}

// ModelPatch is the allow-list of mutable ai_models columns. Nil fields
// are left unchanged.
type ModelPatch struct {
	Emoji       *string
	Name        *string
	Description *string
	Category    *string
	Provider    *string
	ModelName   *string
	IsEnabled   *bool
	IsDefault   *bool
	Priority    *int
}

// ModelDescriptor is the compact per-model shape served to the bot.
type ModelDescriptor struct {
	Emoji       string `json:"e"`
	Name        string `json:"n"`
	Description string `json:"d"`
	Category    string `json:"c"`
	Provider    string `json:"p"`
	ModelName   string `json:"m"`
}

type ActivityEntry struct {
	ID        int64
	Action    string
	Details   string
	IP        string
	CreatedAt time.Time
}

type TestEntry struct {
	ID             int64
	APIName        string
	Status         string
	ResponseTimeMs *int64
	ErrorMessage   *string
	TestedAt       time.Time
}

// Settings is the typed view of the settings table, parsed once per read
// instead of at every call site. All values are stored as strings.
type Settings struct {
	DefaultModel         string `json:"default_model"`
	SystemPrompt         string `json:"system_prompt"`
	MaxMemoryMessages    int    `json:"max_memory_messages"`
	MemoryTimeoutMinutes int    `json:"memory_timeout_minutes"`
	RateLimitAI          int    `json:"rate_limit_ai"`
	RateLimitImg         int    `json:"rate_limit_img"`
	RateLimitDump        int    `json:"rate_limit_dump"`
}
