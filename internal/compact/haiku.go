package compact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/braid-dev/braid/internal/types"
)

const (
	defaultModel   = "claude-3-5-haiku-20241022"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxSummaryTok  = 1024
)

// ErrAPIKeyRequired is returned when no API key is available.
var ErrAPIKeyRequired = errors.New("API key required")

// HaikuSummarizer implements Summarizer against the Anthropic API.
type HaikuSummarizer struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewHaikuSummarizer builds a client. ANTHROPIC_API_KEY takes precedence
// over the explicit key.
func NewHaikuSummarizer(apiKey, model string) (*HaikuSummarizer, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}
	if model == "" {
		model = defaultModel
	}
	return &HaikuSummarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}, nil
}

// Summarize asks the model for a structured summary of the issue's
// long-form text, retrying transient failures with backoff.
func (h *HaikuSummarizer) Summarize(ctx context.Context, issue *types.Issue) (string, error) {
	prompt := buildPrompt(issue)

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		msg, err := h.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     h.model,
			MaxTokens: maxSummaryTok,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			lastErr = err
			continue
		}

		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		summary := strings.TrimSpace(b.String())
		if summary == "" {
			lastErr = fmt.Errorf("empty summary from model")
			continue
		}
		return summary, nil
	}
	return "", fmt.Errorf("summarization failed after %d attempts: %w", maxRetries, lastErr)
}

func buildPrompt(issue *types.Issue) string {
	var b strings.Builder
	b.WriteString("Summarize this closed issue in at most three short paragraphs: ")
	b.WriteString("a one-line summary, the key decisions, and the resolution. ")
	b.WriteString("Output only the summary text.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", issue.Title)
	if issue.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", issue.Description)
	}
	if issue.Design != "" {
		fmt.Fprintf(&b, "Design:\n%s\n", issue.Design)
	}
	if issue.AcceptanceCriteria != "" {
		fmt.Fprintf(&b, "Acceptance criteria:\n%s\n", issue.AcceptanceCriteria)
	}
	if issue.Notes != "" {
		fmt.Fprintf(&b, "Notes:\n%s\n", issue.Notes)
	}
	if issue.CloseReason != "" {
		fmt.Fprintf(&b, "Close reason: %s\n", issue.CloseReason)
	}
	return b.String()
}
