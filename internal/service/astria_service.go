package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const astriaBaseURL = "https://api.astria.ai"

type GenerationStatus string

const (
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

type GenerationJob struct {
	ID     string           `json:"id"`
	Status GenerationStatus `json:"status"`
	Images []string         `json:"images,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Generator is an asynchronous AI image provider.
type Generator interface {
	StartGeneration(ctx context.Context, prompt string) (string, error)
	CheckJob(ctx context.Context, jobID string) (GenerationJob, error)
}

var ErrGeneratorDisabled = errors.New("image generation is not configured")

type AstriaService struct {
	apiKey      string
	tuneID      string
	callbackURL string
	numImages   int
	baseURL     string
	client      *http.Client
}

func NewAstriaService(apiKey, tuneID, callbackURL string) *AstriaService {
	return &AstriaService{
		apiKey:      apiKey,
		tuneID:      tuneID,
		callbackURL: callbackURL,
		numImages:   2,
		baseURL:     astriaBaseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the client at another host (tests).
func (s *AstriaService) WithBaseURL(baseURL string) *AstriaService {
	s.baseURL = baseURL
	return s
}

type astriaPrompt struct {
	ID        json.Number `json:"id"`
	Images    []string    `json:"images"`
	UserError string      `json:"user_error"`
}

func (s *AstriaService) StartGeneration(ctx context.Context, prompt string) (string, error) {
	if s.apiKey == "" || s.tuneID == "" {
		return "", ErrGeneratorDisabled
	}

	body := map[string]any{
		"prompt": map[string]any{
			"text":       fmt.Sprintf("<faceid:%s:1.0> %s", s.tuneID, prompt),
			"num_images": s.numImages,
			"callback":   s.callbackURL,
		},
	}
	var out astriaPrompt
	if err := s.do(ctx, http.MethodPost, s.promptsURL(""), body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("astria returned no prompt id")
	}
	slog.Info("image generation started", "job_id", out.ID.String())
	return out.ID.String(), nil
}

func (s *AstriaService) CheckJob(ctx context.Context, jobID string) (GenerationJob, error) {
	if s.apiKey == "" || s.tuneID == "" {
		return GenerationJob{}, ErrGeneratorDisabled
	}
	var out astriaPrompt
	if err := s.do(ctx, http.MethodGet, s.promptsURL(jobID), nil, &out); err != nil {
		return GenerationJob{}, err
	}
	return out.job(jobID), nil
}

// ParseAstriaCallback reads a prompt callback body into a job.
func ParseAstriaCallback(body []byte) (GenerationJob, error) {
	var out astriaPrompt
	if err := json.Unmarshal(body, &out); err != nil {
		return GenerationJob{}, fmt.Errorf("decode callback: %w", err)
	}
	if out.ID == "" {
		return GenerationJob{}, errors.New("callback carries no prompt id")
	}
	return out.job(out.ID.String()), nil
}

func (p astriaPrompt) job(id string) GenerationJob {
	switch {
	case len(p.Images) > 0:
		return GenerationJob{ID: id, Status: GenerationCompleted, Images: p.Images}
	case p.UserError != "":
		return GenerationJob{ID: id, Status: GenerationFailed, Error: p.UserError}
	default:
		return GenerationJob{ID: id, Status: GenerationProcessing}
	}
}

func (s *AstriaService) promptsURL(id string) string {
	url := s.baseURL + "/tunes/" + s.tuneID + "/prompts"
	if id != "" {
		url += "/" + id
	}
	return url
}

func (s *AstriaService) do(ctx context.Context, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("astria API error: %d - %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}
