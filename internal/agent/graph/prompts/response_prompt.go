package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

// MaxReferenceCases bounds how many retrieved cases reach the prompt.
const MaxReferenceCases = 3

var (
	//go:embed template/response_system.txt
	responseSystemPrompt string
	//go:embed template/response_user.txt
	responseUserPrompt string
)

// ResponseInput is everything the response prompt can show the model.
type ResponseInput struct {
	Query               string
	Classification      model.Classification
	Cases               []model.RetrievedCase
	ConversationContext string
	// Manuscript switches the prompt to the grounded variant.
	Manuscript *model.ManuscriptRecord
}

type caseView struct {
	Index      int
	Query      string
	Resolution string
	Tags       string
}

// RenderResponse renders the general or grounded response prompt.
func RenderResponse(ctx context.Context, cfg model.ResponsePromptConfig, in ResponseInput) (Rendered, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(responseSystemPrompt),
		schema.UserMessage(responseUserPrompt),
	)

	cases := in.Cases
	if len(cases) > MaxReferenceCases {
		cases = cases[:MaxReferenceCases]
	}
	views := make([]caseView, 0, len(cases))
	for i, c := range cases {
		tags := "N/A"
		if len(c.Tags) > 0 {
			tags = strings.Join(c.Tags, ", ")
		}
		views = append(views, caseView{Index: i + 1, Query: c.Query, Resolution: c.Resolution, Tags: tags})
	}

	manuscriptID := in.Classification.ManuscriptID
	if manuscriptID == "" {
		manuscriptID = "Not specified"
	}
	manuscript := ""
	if in.Manuscript != nil {
		manuscript = in.Manuscript.Format()
	}

	vars := map[string]any{
		"JournalName":         cfg.JournalName,
		"SupportDesk":         cfg.SupportDesk,
		"Grounded":            in.Manuscript != nil,
		"Query":               in.Query,
		"Manuscript":          manuscript,
		"ConversationContext": in.ConversationContext,
		"Category":            orNA(string(in.Classification.Category)),
		"Urgency":             orDefault(string(in.Classification.Urgency), string(model.UrgencyMedium)),
		"ManuscriptID":        manuscriptID,
		"IssueSummary":        orNA(in.Classification.IssueSummary),
		"Cases":               views,
	}
	msgs, err := tpl.Format(withRunInfo(ctx, ResponsePromptName), vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("response prompt render: %w", err)
	}
	return pair(msgs, "response")
}

func orNA(s string) string {
	return orDefault(s, "N/A")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
