package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pagesforge/api/internal/model"
)

// ErrDeliveryFailed is returned once the retry budget is exhausted or the
// endpoint definitively rejected the outcome. The job is already terminal at
// that point; the caller only logs it.
var ErrDeliveryFailed = errors.New("outcome delivery failed")

// Reporter delivers a job outcome to the caller-supplied evaluation endpoint
// with bounded retries and exponential backoff.
type Reporter struct {
	httpClient     *http.Client
	delays         []time.Duration
	attemptTimeout time.Duration
}

// New creates a reporter with the production retry schedule: five attempts,
// 1s/2s/4s/8s/16s between them, 30s per attempt.
func New() *Reporter {
	return NewWithSchedule(
		[]time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		30*time.Second,
	)
}

// NewWithSchedule creates a reporter with an explicit backoff schedule. The
// number of attempts equals len(delays); delays[i] is slept after failed
// attempt i+1.
func NewWithSchedule(delays []time.Duration, attemptTimeout time.Duration) *Reporter {
	return &Reporter{
		httpClient:     &http.Client{},
		delays:         delays,
		attemptTimeout: attemptTimeout,
	}
}

// Deliver posts the outcome to the evaluation URL. It retries transient
// failures (network errors, 5xx, 408, 429) per the schedule and abandons
// immediately on a definitive client-side rejection. Exactly one of nil or
// ErrDeliveryFailed is returned; the failure is fully logged either way.
func (r *Reporter) Deliver(ctx context.Context, evaluationURL string, outcome *model.JobOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	attempts := len(r.delays)
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Printf("Delivering outcome | Task=%s | Round=%d | Attempt %d/%d | URL=%s",
			outcome.Task, outcome.Round, attempt, attempts, evaluationURL)

		retryable, err := r.post(ctx, evaluationURL, payload)
		if err == nil {
			log.Printf("Outcome delivered | Task=%s | Round=%d", outcome.Task, outcome.Round)
			return nil
		}

		if !retryable {
			log.Printf("Outcome rejected, not retrying | Task=%s | Round=%d | Error: %v",
				outcome.Task, outcome.Round, err)
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}

		log.Printf("Delivery attempt %d/%d failed | Task=%s | Error: %v", attempt, attempts, outcome.Task, err)

		if attempt < attempts {
			select {
			case <-time.After(r.delays[attempt-1]):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
			}
		}
	}

	log.Printf("Outcome delivery exhausted %d attempts | Task=%s | Round=%d | URL=%s | Payload=%s",
		attempts, outcome.Task, outcome.Round, evaluationURL, string(payload))
	return ErrDeliveryFailed
}

// post performs one delivery attempt. The bool reports whether the failure is
// worth retrying.
func (r *Reporter) post(ctx context.Context, evaluationURL string, payload []byte) (bool, error) {
	actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, evaluationURL, bytes.NewReader(payload))
	if err != nil {
		// Malformed callback address; retrying cannot help
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("evaluation endpoint returned %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("evaluation endpoint rejected outcome (%d): %s", resp.StatusCode, string(body))
	default:
		return true, fmt.Errorf("evaluation endpoint returned %d: %s", resp.StatusCode, string(body))
	}
}
