package model

// Category is one of the closed set of intents the desk recognises.
type Category string

const (
	CategoryStatusInquiry      Category = "status_inquiry"
	CategoryReviewDelay        Category = "review_delay"
	CategoryDecisionTimeline   Category = "decision_timeline"
	CategoryRevisionSubmission Category = "revision_submission"
	CategoryWithdrawalRequest  Category = "withdrawal_request"
)

var categories = []Category{
	CategoryStatusInquiry,
	CategoryReviewDelay,
	CategoryDecisionTimeline,
	CategoryRevisionSubmission,
	CategoryWithdrawalRequest,
}

// Categories returns the recognised categories in declaration order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c belongs to the recognised set.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Urgency is the triage priority of a query.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// UrgencyLevels returns the recognised urgencies from lowest to highest.
func UrgencyLevels() []Urgency {
	return []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}
}

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// Case is a historical query and its resolution. Cases are never mutated after load.
type Case struct {
	ID                  string   `json:"id"`
	Category            Category `json:"category"`
	Urgency             Urgency  `json:"urgency"`
	ManuscriptID        string   `json:"manuscript_id,omitempty"`
	Query               string   `json:"query"`
	Resolution          string   `json:"resolution"`
	Tags                []string `json:"tags,omitempty"`
	CreatedDate         string   `json:"created_date,omitempty"`
	ResolutionTimeHours float64  `json:"resolution_time_hours,omitempty"`
}

// RetrievedCase is a case scored against a query. Higher is more similar.
type RetrievedCase struct {
	Case
	RelevanceScore float64 `json:"relevance_score"`
}

// Classification is the classifier's view of a single customer message.
type Classification struct {
	Category     Category `json:"category"`
	Urgency      Urgency  `json:"urgency"`
	ManuscriptID string   `json:"manuscript_id,omitempty"`
	IssueSummary string   `json:"issue_summary"`
}

// DefaultClassification is used whenever the classifier reply is unusable.
func DefaultClassification() Classification {
	return Classification{
		Category:     CategoryStatusInquiry,
		Urgency:      UrgencyMedium,
		IssueSummary: "Unable to classify query",
	}
}

// CorpusStats summarises the case corpus.
type CorpusStats struct {
	Total      int              `json:"total_cases"`
	ByCategory map[Category]int `json:"categories"`
	ByUrgency  map[Urgency]int  `json:"urgency_distribution"`
}
