package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	noTranscriptSummary = "No transcript available."
	missingSummary      = "Summary not available."
)

// Analysis is the outcome of analyzing a transcript. Every code path in
// Analyze produces a usable pair; there is no error return.
type Analysis struct {
	Summary string
	Tags    []string
}

// Analyzer defines the interface for the summarization/tagging engine.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) Analysis
}

// chatCompleter is the slice of the OpenAI client the analyzer needs.
// *openai.Client satisfies it; tests substitute stubs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAnalyzer summarizes and tags transcripts via a chat completion.
//
// The response handling is an ordered chain of strategies: structured JSON
// parse, then heuristic first-line parse, and a hard fallback when the call
// itself fails. Liveness wins over correctness here: a degraded summary is
// always preferable to a failed upload.
type OpenAIAnalyzer struct {
	client chatCompleter
	model  string
	log    *logrus.Entry
}

func NewOpenAIAnalyzer(client *openai.Client, model string, log *logrus.Entry) *OpenAIAnalyzer {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIAnalyzer{client: client, model: model, log: log}
}

// errUnexpectedShape aborts the parse chain: the reply decoded as JSON but
// not as the expected object, so the first-line heuristic would only echo
// the serialized value back as a summary.
var errUnexpectedShape = errors.New("response is valid JSON but not an object")

// parseStrategy attempts to turn a fence-stripped model response into an
// Analysis. Returning ok=false hands the response to the next strategy in
// the chain; a non-nil error abandons the chain for the hard fallback.
type parseStrategy func(content string) (Analysis, bool, error)

var parseChain = []parseStrategy{parseStructured, parseHeuristic}

// Analyze returns a summary and tag list for the transcript. An empty or
// whitespace-only transcript short-circuits without touching the engine.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, transcript string) Analysis {
	if strings.TrimSpace(transcript) == "" {
		return Analysis{Summary: noTranscriptSummary, Tags: []string{}}
	}

	raw, err := a.complete(ctx, transcript)
	if err != nil {
		if a.log != nil {
			a.log.WithField("error", err.Error()).Warn("transcript analysis call failed, using hard fallback")
		}
		return hardFallback(transcript)
	}

	// Every tier works on the fence-stripped content, including the
	// first-line heuristic.
	content := stripCodeFence(raw)
	for _, parse := range parseChain {
		result, ok, err := parse(content)
		if err != nil {
			return hardFallback(transcript)
		}
		if ok {
			return result
		}
	}
	// parseHeuristic always succeeds; unreachable.
	return hardFallback(transcript)
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, transcript string) (string, error) {
	systemPrompt, userPrompt := BuildPrompt(transcript)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseStructured decodes the expected JSON object, tolerating a tags field
// that is a bare string. Content that is not JSON at all falls to the next
// tier; JSON that is not an object (a bare number, string or array) aborts
// to the hard fallback.
func parseStructured(content string) (Analysis, bool, error) {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Analysis{}, false, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Analysis{}, false, errUnexpectedShape
	}

	summary := missingSummary
	if s, ok := obj["summary"].(string); ok {
		summary = s
	}
	return Analysis{Summary: summary, Tags: coerceTags(obj["tags"])}, true, nil
}

// parseHeuristic is the terminal strategy for undecodable responses: the
// first line stands in for the summary.
func parseHeuristic(content string) (Analysis, bool, error) {
	summary := missingSummary
	if lines := strings.Split(content, "\n"); len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		summary = lines[0]
	}
	return Analysis{Summary: summary, Tags: []string{"needs follow-up"}}, true, nil
}

func hardFallback(transcript string) Analysis {
	return Analysis{
		Summary: fmt.Sprintf("Transcript analyzed. (%d characters)", utf8.RuneCountInString(transcript)),
		Tags:    []string{"needs follow-up"},
	}
}

func coerceTags(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		tags := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return []string{}
	}
}

// stripCodeFence removes a markdown code-block wrapper if present
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}
