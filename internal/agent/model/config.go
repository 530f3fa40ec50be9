package model

// ================ Config ================
type ConversationConfig struct {
	Store         string `envconfig:"CONVERSATION_STORE" default:"memory"`
	TTL           string `envconfig:"CONVERSATION_TTL" default:"24h"`
	HistoryWindow int    `envconfig:"CONVERSATION_HISTORY_WINDOW" default:"5"`
	SummaryWindow int    `envconfig:"CONVERSATION_SUMMARY_WINDOW" default:"10"`
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.3"`
}

type ResponseModelConfig struct {
	Model               string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens           int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature         float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.5"`
	GroundedTemperature float32 `envconfig:"RESPONSE_GROUNDED_TEMPERATURE" default:"0.3"`
}

type LLMConfig struct {
	Timeout string `envconfig:"LLM_TIMEOUT" default:"30s"`
}

type RetrievalConfig struct {
	Mode           string `envconfig:"RETRIEVAL_MODE" default:"lexical"`
	TopK           int    `envconfig:"RETRIEVAL_TOP_K" default:"3"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	BatchSize      int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"16"`
	Concurrency    int    `envconfig:"EMBEDDING_CONCURRENCY" default:"4"`
}

type EscalationConfig struct {
	Threshold           float64 `envconfig:"ESCALATION_THRESHOLD" default:"0.5"`
	UrgentMessageCount  int     `envconfig:"ESCALATION_URGENT_MESSAGE_COUNT" default:"2"`
	FrustrationLookback int     `envconfig:"ESCALATION_FRUSTRATION_LOOKBACK" default:"3"`
	PolicyFile          string  `envconfig:"POLICY_FILE"`
}

type PipelineConfig struct {
	RequireManuscriptID bool `envconfig:"PIPELINE_REQUIRE_MANUSCRIPT_ID" default:"true"`
	ManuscriptLookup    bool `envconfig:"PIPELINE_MANUSCRIPT_LOOKUP" default:"true"`
}

type DataConfig struct {
	CasesPath       string `envconfig:"DATA_CASES_PATH" default:"data/synthetic_data.csv"`
	ManuscriptsPath string `envconfig:"DATA_MANUSCRIPTS_PATH" default:"data/manuscript_status_db.csv"`
}

type ResponsePromptConfig struct {
	JournalName string `envconfig:"PROMPT_JOURNAL_NAME" default:"the journal"`
	SupportDesk string `envconfig:"PROMPT_SUPPORT_EMAIL" default:"editorial@journal.com"`
}

type HTTPConfig struct {
	Addr            string `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout string `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}
