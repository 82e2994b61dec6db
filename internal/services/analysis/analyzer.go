// Package analysis turns a finished call transcript into a structured
// interest/priority verdict.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/internal/prompts"
	"github.com/ventalink/lead-voice-service/pkg/llm"
	"github.com/ventalink/lead-voice-service/pkg/logger"
	"go.uber.org/zap"
)

const analyzeTimeout = 30 * time.Second

// Analyzer produces post-call verdicts. Analyze never fails: the call-end
// handler must make a routing decision unconditionally, so every error path
// collapses into the safe default verdict.
type Analyzer struct {
	chat llm.ChatClient
}

// NewAnalyzer creates an analyzer backed by the given chat client.
func NewAnalyzer(chat llm.ChatClient) *Analyzer {
	return &Analyzer{chat: chat}
}

// Analyze summarizes the transcript into an Analysis. Empty transcripts,
// collaborator failures, and unparseable replies all yield the default
// verdict.
func (a *Analyzer) Analyze(ctx context.Context, transcript []domain.TranscriptEntry) *domain.Analysis {
	if len(transcript) == 0 {
		return domain.DefaultAnalysis()
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	reply, err := a.chat.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompts.AnalysisPrompt + formatTranscript(transcript)},
	})
	if err != nil {
		logger.Base().Warn("post-call analysis request failed, using default verdict", zap.Error(err))
		return domain.DefaultAnalysis()
	}

	verdict, err := parseAnalysis(reply)
	if err != nil {
		logger.Base().Warn("post-call analysis reply unparseable, using default verdict",
			zap.Error(err), zap.String("reply_head", head(reply, 200)))
		return domain.DefaultAnalysis()
	}
	return verdict
}

// formatTranscript renders transcript turns one per line for the prompt.
func formatTranscript(transcript []domain.TranscriptEntry) string {
	var b strings.Builder
	for _, entry := range transcript {
		label := "Cliente"
		if entry.Role == domain.MessageRoleAssistant {
			label = "Agente"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, entry.Text)
	}
	return b.String()
}

// parseAnalysis extracts the first well-formed JSON object from the model
// reply, tolerant of surrounding prose, and normalizes its fields.
func parseAnalysis(reply string) (*domain.Analysis, error) {
	raw, err := firstJSONObject(reply)
	if err != nil {
		return nil, err
	}

	var verdict domain.Analysis
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis object: %w", err)
	}

	switch verdict.InterestLevel {
	case domain.InterestLow, domain.InterestMedium, domain.InterestHigh:
	default:
		verdict.InterestLevel = domain.InterestUnknown
	}
	if verdict.Priority != domain.PriorityHigh {
		verdict.Priority = domain.PriorityNormal
	}
	if verdict.NextAction == "" {
		verdict.NextAction = "unknown"
	}
	if verdict.Summary == "" {
		verdict.Summary = "analysis unavailable"
	}
	return &verdict, nil
}

// firstJSONObject returns the first balanced {...} span in s, skipping braces
// inside JSON strings.
func firstJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in reply")
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
