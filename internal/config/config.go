package config

import "time"

const (
	DefaultTimeZone = "Asia/Seoul"

	// External validation defaults (OpenAI-compatible endpoint)
	DefaultLLMBaseURL       = "https://api.openai.com/v1"
	DefaultChatModel        = "gpt-4.1-mini"
	DefaultEmbeddingModel   = "text-embedding-3-large"
	DefaultRequestTimeout   = 60 * time.Second
	DefaultLLMRetryAttempts = 3
	DefaultLLMRetryBackoff  = 2 * time.Second

	// Validation target selection
	DefaultMaxSamples    = 100
	TopAmountFraction    = 0.005
	TopAmountCap         = 50
	SevereViolationCount = 2

	// Regulation store
	DefaultTopK         = 3
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// Session lifetime and sweep defaults
	DefaultSessionTTL           = 2 * time.Hour
	DefaultSessionSweepSchedule = "*/10 * * * *"
	DefaultExportRetentionDays  = 7
)
