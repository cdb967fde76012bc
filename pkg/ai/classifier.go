// Package ai calls the hosted classification model.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"digitlens/pkg/domain"
)

// ErrNoResponse is returned when the model reply carries no content at all.
var ErrNoResponse = errors.New("no response received from the model")

// classifyPrompt asks for the exact three-field JSON shape the result
// parser expects.
const classifyPrompt = `Analyze this image which contains a handwritten number.
Identify the digit(s) written in the image.

Return the response in this specific JSON format without markdown code blocks:
{
  "digit": "The identified number (or '?' if unclear)",
  "confidence": "High" | "Medium" | "Low",
  "explanation": "A very brief 1 sentence description of what you see."
}`

// Classifier classifies a handwritten digit image.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType string) (domain.AnalysisResult, error)
}

// GeminiClassifier implements Classifier with a fixed Gemini model.
type GeminiClassifier struct {
	client *GeminiClient
	model  string
}

// NewGeminiClassifier builds a Gemini-based classifier.
func NewGeminiClassifier(client *GeminiClient, model string) *GeminiClassifier {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClassifier{client: client, model: model}
}

// Classify sends the image with the fixed instruction prompt and parses the
// structured reply. Transport and API errors propagate; an unparseable reply
// degrades to a sentinel result instead of failing.
func (g *GeminiClassifier) Classify(ctx context.Context, image []byte, mimeType string) (domain.AnalysisResult, error) {
	text, err := g.client.GenerateFromImage(ctx, g.model, classifyPrompt, image, mimeType)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return parseResult(text), nil
}

// parseResult decodes the model's JSON reply. Malformed output yields the
// degraded sentinel rather than an error, so the scan flow still completes.
func parseResult(text string) domain.AnalysisResult {
	cleaned := stripCodeFences(text)
	var parsed struct {
		Digit       string `json:"digit"`
		Confidence  string `json:"confidence"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil || parsed.Digit == "" {
		return domain.AnalysisResult{
			Digit:       "?",
			Confidence:  domain.ConfidenceLow,
			Explanation: "Could not parse the AI response.",
			Raw:         json.RawMessage(text),
		}
	}
	return domain.AnalysisResult{
		Digit:       parsed.Digit,
		Confidence:  domain.ParseConfidence(parsed.Confidence),
		Explanation: parsed.Explanation,
		Raw:         json.RawMessage(cleaned),
	}
}

// stripCodeFences removes a markdown code fence the model sometimes adds
// despite the prompt.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
