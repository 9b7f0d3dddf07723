// Package submit builds and delivers the grading-endpoint submission.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Submitter delivers one attempt submission. Implementations make exactly
// one delivery try per call; retry policy belongs to the caller.
type Submitter interface {
	Submit(ctx context.Context, payload Payload) error
}

// HTTPSubmitter posts submissions to the assessment platform.
type HTTPSubmitter struct {
	base   string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPSubmitter creates a submitter against the given API base URL.
func NewHTTPSubmitter(base string, log zerolog.Logger) *HTTPSubmitter {
	return &HTTPSubmitter{
		base:   base,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With().Str("component", "submit_client").Logger(),
	}
}

// Submit posts the payload once. Any non-2xx status is an error; the caller
// decides whether to retry.
func (s *HTTPSubmitter) Submit(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding submit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/mcq/submit_assessment/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.log.Error().
			Int("status", resp.StatusCode).
			Str("contest_id", payload.ContestID).
			Msg("Submission rejected")
		return fmt.Errorf("submit endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	s.log.Info().Str("contest_id", payload.ContestID).Msg("Submission accepted")
	return nil
}
