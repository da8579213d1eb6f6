// Package external contains clients for the remote patient persistence service.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/oscillometry-report-server/internal/domain"
)

// PatientClientConfig configures the HTTP client of the persistence service
type PatientClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
}

// PatientClient implements domain.PatientStore over the persistence HTTP API.
// Transport failures and an open circuit are reported as domain.ErrUnavailable.
type PatientClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Logger
}

// NewPatientClient creates a new persistence service client
func NewPatientClient(config PatientClientConfig, logger *logrus.Logger) *PatientClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PatientService",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// A missing patient is an answer, not a service failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &PatientClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:    breaker,
		log:        logger,
	}
}

// List fetches the patient listing.
func (c *PatientClient) List(ctx context.Context) ([]domain.PatientSummary, error) {
	var out []domain.PatientSummary
	if _, err := c.do(ctx, http.MethodGet, "/api/patients", nil, &out); err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	if out == nil {
		out = []domain.PatientSummary{}
	}
	return out, nil
}

// Get fetches one patient record.
func (c *PatientClient) Get(ctx context.Context, id string) (*domain.PatientRecord, error) {
	var record domain.PatientRecord
	if _, err := c.do(ctx, http.MethodGet, "/api/patients/"+url.PathEscape(id), nil, &record); err != nil {
		return nil, fmt.Errorf("getting patient %s: %w", id, err)
	}
	return &record, nil
}

// Put upserts a record; the service answers 201 for a new patient and 200 for an update.
func (c *PatientClient) Put(ctx context.Context, record *domain.PatientRecord) (*domain.PatientRecord, bool, error) {
	if record == nil {
		return nil, false, domain.NewValidationError("record", "record is required", nil)
	}
	var stored domain.PatientRecord
	status, err := c.do(ctx, http.MethodPost, "/api/patients", record, &stored)
	if err != nil {
		return nil, false, fmt.Errorf("saving patient %s: %w", record.ID, err)
	}
	return &stored, status == http.StatusCreated, nil
}

// Delete removes one patient.
func (c *PatientClient) Delete(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/patients/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting patient %s: %w", id, err)
	}
	return nil
}

// Clear removes every patient.
func (c *PatientClient) Clear(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/clear_patients", nil, nil); err != nil {
		return fmt.Errorf("clearing patients: %w", err)
	}
	return nil
}

// do runs one request through the rate limiter and the circuit breaker and decodes a
// successful body into out.
func (c *PatientClient) do(ctx context.Context, method, path string, in, out any) (int, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	status, _ := result.(int)
	return status, err
}

func (c *PatientClient) roundTrip(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Warn("Patient service request failed")
		return 0, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: %s", domain.ErrNotFound, errorMessage(resp.Body))
	case resp.StatusCode >= 400:
		return resp.StatusCode, fmt.Errorf("patient service returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// errorMessage extracts the message of an error body ({"message": ...}).
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
