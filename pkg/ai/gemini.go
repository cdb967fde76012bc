package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Google AI Studio (Gemini) API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a client with the provided API key. The timeout
// bounds every model call; zero falls back to 30s.
func NewGeminiClient(apiKey string, timeout time.Duration) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SetBaseURL overrides the API endpoint, for tests.
func (c *GeminiClient) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// GenerateFromImage sends an inline image plus instruction prompt and
// returns the generated text. An empty candidate list is ErrNoResponse.
func (c *GeminiClient) GenerateFromImage(ctx context.Context, model, prompt string, image []byte, mimeType string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{InlineData: &inlineData{
						MimeType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(image),
					}},
					{Text: prompt},
				},
			},
		},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}
	var resp generateResponse
	if err := c.doJSON(ctx, fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey), reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoResponse
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func (c *GeminiClient) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("gemini api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
