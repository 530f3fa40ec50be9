package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

// Names reported to prompt callbacks.
const (
	ClassifierPromptName = "ClassifierPrompt"
	ResponsePromptName   = "ResponsePrompt"
)

var (
	//go:embed template/classifier_system.txt
	classifierSystemPrompt string
	//go:embed template/classifier_user.txt
	classifierUserPrompt string
)

// Rendered is a system/user prompt pair ready for a model call.
type Rendered struct {
	System string
	User   string
}

// RenderClassifier renders the triage prompt via the Eino prompt component so
// prompt callbacks fire.
func RenderClassifier(ctx context.Context, cfg model.ResponsePromptConfig, query string) (Rendered, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)
	vars := map[string]any{
		"JournalName":   cfg.JournalName,
		"Categories":    joinStrings(model.Categories()),
		"UrgencyLevels": joinStrings(model.UrgencyLevels()),
		"Query":         query,
	}
	msgs, err := tpl.Format(withRunInfo(ctx, ClassifierPromptName), vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("classifier prompt render: %w", err)
	}
	return pair(msgs, "classifier")
}

// withRunInfo names the render for prompt callbacks. Inside a graph node the
// context already carries the node's run info, which would otherwise be reused.
func withRunInfo(ctx context.Context, name string) context.Context {
	return callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "ChatTemplate",
		Component: components.ComponentOfPrompt,
	})
}

func pair(msgs []*schema.Message, name string) (Rendered, error) {
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return Rendered{}, fmt.Errorf("%s prompt render: unexpected result", name)
	}
	return Rendered{System: msgs[0].Content, User: strings.TrimSpace(msgs[1].Content)}, nil
}

func joinStrings[S ~string](items []S) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, ", ")
}
