package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPSender posts the code to an email-sending endpoint
// (POST {endpoint} with body {"email": ..., "otp": ...}).
type HTTPSender struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPSender builds a sender for the given endpoint URL.
func NewHTTPSender(endpoint string) (*HTTPSender, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("otp delivery endpoint required")
	}
	return &HTTPSender{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type otpPayload struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// SendOTP posts the code. Non-2xx replies are errors.
func (s *HTTPSender) SendOTP(ctx context.Context, email, code string) error {
	body, err := json.Marshal(otpPayload{Email: email, OTP: code})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send otp: unexpected status %s", resp.Status)
	}
	return nil
}
