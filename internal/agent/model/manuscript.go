package model

import (
	"fmt"
	"strings"
)

// ManuscriptRecord is a row of the manuscript status database.
type ManuscriptRecord struct {
	ManuscriptID   string `json:"manuscript_id"`
	AuthorName     string `json:"author_name,omitempty"`
	SubmissionDate string `json:"submission_date,omitempty"`
	CurrentStatus  string `json:"current_status,omitempty"`
	ReviewerCount  int    `json:"reviewer_count"`
	DecisionDate   string `json:"decision_date,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Format renders the record as the grounded data block given to the response model.
// Missing values are spelled out so the model can disclose the gap.
func (r ManuscriptRecord) Format() string {
	orMissing := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "Not available"
		}
		return v
	}

	var b strings.Builder
	b.WriteString("REAL MANUSCRIPT DATA:\n")
	fmt.Fprintf(&b, "- Manuscript ID: %s\n", r.ManuscriptID)
	fmt.Fprintf(&b, "- Author: %s\n", orMissing(r.AuthorName))
	fmt.Fprintf(&b, "- Submission Date: %s\n", orMissing(r.SubmissionDate))
	fmt.Fprintf(&b, "- Current Status: %s\n", orMissing(r.CurrentStatus))
	fmt.Fprintf(&b, "- Reviewers Assigned: %d\n", r.ReviewerCount)
	fmt.Fprintf(&b, "- Decision Date: %s\n", orMissing(r.DecisionDate))
	fmt.Fprintf(&b, "- Notes: %s", orMissing(r.Notes))
	return b.String()
}
