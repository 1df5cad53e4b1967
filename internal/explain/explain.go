// Package explain asks a language model to turn raw checkstyle violations
// into prioritized, human-readable advice.
package explain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

const (
	defaultModel = "gpt-4o-mini"
	maxTokens    = 1024

	// maxPromptViolations bounds the prompt for very noisy runs.
	maxPromptViolations = 100
)

const systemPrompt = `You are a senior Java engineer reviewing checkstyle output.
Group related violations, explain why each group matters, and suggest the
smallest code change that fixes each one. Be specific and concise. Order the
groups by how much they hurt readability or correctness, worst first.`

// Advisor turns violation lists into review-style advice.
type Advisor struct {
	client *openai.Client
	model  string
}

// New creates an Advisor. An empty model selects a small default.
func New(apiKey, model string) *Advisor {
	if model == "" {
		model = defaultModel
	}
	return &Advisor{client: openai.NewClient(apiKey), model: model}
}

// Explain asks the model to explain the violations found in target.
func (a *Advisor) Explain(ctx context.Context, target string, violations []analysis.Violation) (string, error) {
	if len(violations) == 0 {
		return "", errors.New("nothing to explain: no violations")
	}
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(target, violations)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("requesting explanation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// userPrompt renders the violations grouped by file, capped so enormous
// runs stay within the model's context window.
func userPrompt(target string, violations []analysis.Violation) string {
	byFile := make(map[string][]analysis.Violation)
	var files []string
	for _, v := range violations {
		if _, seen := byFile[v.FilePath]; !seen {
			files = append(files, v.FilePath)
		}
		byFile[v.FilePath] = append(byFile[v.FilePath], v)
	}
	sort.Strings(files)

	var b strings.Builder
	fmt.Fprintf(&b, "Checkstyle results for %s (%d violations):\n", target, len(violations))
	written := 0
	for _, f := range files {
		if written >= maxPromptViolations {
			break
		}
		fmt.Fprintf(&b, "\n%s:\n", f)
		for _, v := range byFile[f] {
			if written >= maxPromptViolations {
				break
			}
			fmt.Fprintf(&b, "  line %d [%s] %s\n", v.LineNumber, v.Severity, v.Message)
			written++
		}
	}
	if rest := len(violations) - written; rest > 0 {
		fmt.Fprintf(&b, "\n(and %d more violations omitted)\n", rest)
	}
	return b.String()
}
