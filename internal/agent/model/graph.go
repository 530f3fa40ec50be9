package model

import (
	"time"
)

// PipelinePolicy parameterises the turn graph. The conversational desk requires
// a manuscript id and checks it against the status database; the single-shot
// query path does neither.
type PipelinePolicy struct {
	Name                string
	RequireManuscriptID bool
	ManuscriptLookup    bool
}

var (
	ConversationalPolicy = PipelinePolicy{Name: "conversational", RequireManuscriptID: true, ManuscriptLookup: true}
	SingleShotPolicy     = PipelinePolicy{Name: "single_shot"}
)

// TurnOutcome names the path a turn took through the graph.
type TurnOutcome string

const (
	OutcomeAnswered           TurnOutcome = "answered"
	OutcomeNeedManuscriptID   TurnOutcome = "need_manuscript_id"
	OutcomeManuscriptNotFound TurnOutcome = "manuscript_not_found"
	OutcomeOffTopic           TurnOutcome = "off_topic"
	OutcomeModelFailure       TurnOutcome = "model_failure"
)

// Turn is the per-invocation working value passed between graph nodes.
// Concurrency model:
//   - A Turn is created by the runner for exactly one graph invocation and is
//     only touched by the nodes of that invocation, which run sequentially.
//   - Conversation is owned by the caller, who holds the per-conversation lock
//     for the whole invocation.
type Turn struct {
	Conversation *Conversation
	Policy       PipelinePolicy
	Query        string
	StartedAt    time.Time

	ManuscriptID   string
	Manuscript     *ManuscriptRecord
	Classification *Classification
	Retrieved      []RetrievedCase

	Response         string
	Confidence       float64
	Grounded         bool
	ScoringVersion   string
	Escalate         bool
	EscalationReason string
	Close            bool
	Outcome          TurnOutcome
}

// TurnResult is returned to callers after each customer message.
type TurnResult struct {
	ConversationID   string              `json:"conversation_id"`
	Query            string              `json:"query"`
	Response         string              `json:"response"`
	Confidence       float64             `json:"confidence_score"`
	ShouldEscalate   bool                `json:"should_escalate"`
	EscalationReason string              `json:"escalation_reason,omitempty"`
	Closed           bool                `json:"closed"`
	State            State               `json:"state"`
	Outcome          TurnOutcome         `json:"outcome"`
	Classification   *Classification     `json:"triage,omitempty"`
	SimilarCases     []RetrievedCase     `json:"similar_cases"`
	Context          ConversationContext `json:"context"`
	ProcessingTime   time.Duration       `json:"processing_time_ns"`
}

// BatchSummary aggregates a batch of single-shot queries.
type BatchSummary struct {
	Results           []*TurnResult `json:"results"`
	Total             int           `json:"total"`
	AverageConfidence float64       `json:"average_confidence"`
	Escalations       int           `json:"escalations"`
	TotalTime         time.Duration `json:"total_time_ns"`
}

// SystemStats describes the running desk.
type SystemStats struct {
	KnowledgeBase   CorpusStats `json:"knowledge_base"`
	Manuscripts     int         `json:"manuscripts"`
	Categories      []Category  `json:"categories"`
	UrgencyLevels   []Urgency   `json:"urgency_levels"`
	ClassifierModel string      `json:"classifier_model"`
	ResponseModel   string      `json:"response_model"`
	RetrievalMode   string      `json:"retrieval_mode"`
}
