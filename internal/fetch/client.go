// Package fetch retrieves question papers from the assessment platform.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/model"
)

// Client fetches flat and sectioned papers over HTTP.
type Client struct {
	base   string
	client *http.Client
	log    zerolog.Logger
}

// NewClient creates a fetch client against the given API base URL.
func NewClient(base string, log zerolog.Logger) *Client {
	return &Client{
		base:   base,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With().Str("component", "fetch_client").Logger(),
	}
}

// flatResponse is the flat-paper endpoint body.
type flatResponse struct {
	Questions []model.Question `json:"questions"`
	Duration  model.Duration   `json:"duration"`
}

// FlatPaper fetches the single-duration question list for a contest.
func (c *Client) FlatPaper(ctx context.Context, contestID string) (*model.ExamPaper, error) {
	var body flatResponse
	url := fmt.Sprintf("%s/api/mcq/get_mcqquestions/%s", c.base, contestID)
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	return &model.ExamPaper{
		ContestID: contestID,
		Mode:      model.ModeFlat,
		Questions: body.Questions,
		Duration:  body.Duration,
	}, nil
}

// SectionedPaper fetches the section list for a contest.
func (c *Client) SectionedPaper(ctx context.Context, contestID string) (*model.ExamPaper, error) {
	var sections []model.Section
	url := fmt.Sprintf("%s/api/mcq/sections/%s/", c.base, contestID)
	if err := c.getJSON(ctx, url, &sections); err != nil {
		return nil, err
	}
	return &model.ExamPaper{
		ContestID: contestID,
		Mode:      model.ModeSectioned,
		Sections:  sections,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building paper request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching paper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error().Int("status", resp.StatusCode).Str("url", url).Msg("Paper fetch failed")
		return fmt.Errorf("paper endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding paper response: %w", err)
	}
	return nil
}
