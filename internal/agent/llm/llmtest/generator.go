// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"sync"
)

// Call records one Generate invocation.
type Call struct {
	User        string
	System      string
	Temperature float32
}

// Generator answers with Reply, or with Func when set.
type Generator struct {
	Reply string
	Err   error
	Func  func(user, system string) (string, error)

	mu    sync.Mutex
	calls []Call
}

func (g *Generator) Generate(_ context.Context, userPrompt, systemPrompt string, temperature float32) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{User: userPrompt, System: systemPrompt, Temperature: temperature})
	g.mu.Unlock()
	if g.Func != nil {
		return g.Func(userPrompt, systemPrompt)
	}
	return g.Reply, g.Err
}

func (g *Generator) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}
