package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChrisCalzaretta/memoryagent-sub010/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Config holds configuration for the TEI embedding service.
type Config struct {
	// BaseURL is the base URL for the embedding API
	BaseURL string

	// Model is the embedding model to use
	Model string

	// APIKey is the API key (optional for TEI)
	APIKey string

	// RPS limits requests per second to the TEI endpoint. 0 disables limiting.
	RPS float64

	// Burst is the rate limiter burst size. Defaults to max(1, RPS).
	Burst int

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff duration. Doubles on each retry.
	RetryBackoff time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.RPS < 0 {
		return fmt.Errorf("%w: rps cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Service provides embedding generation via a TEI-compatible HTTP endpoint.
type Service struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}

	var limiter *rate.Limiter
	if config.RPS > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = int(config.RPS)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}

	return &Service{
		config:  config,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
		metrics: NewMetrics(zap.NewNop()),
	}, nil
}

// SetMetrics replaces the metrics recorder, typically with one that logs.
func (s *Service) SetMetrics(m *Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// teiRequest is the request body for TEI embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// Embedder returns an Embedder interface implementation.
func (s *Service) Embedder() vectorstore.Embedder {
	return s
}

// EmbedDocuments generates embeddings for multiple texts in one request.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
		return nil, genErr
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := s.embed(ctx, text)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}

	return vectors[0], nil
}

// embed posts inputs to the TEI /embed endpoint with rate limiting and
// retry on transient failures.
func (s *Service) embed(ctx context.Context, inputs interface{}) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{
		Inputs:   inputs,
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var vectors [][]float32
	err = s.retryOperation(ctx, "embed", func() error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if s.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
		}

		resp, err := s.client.Do(httpReq)
		if err != nil {
			return &transientError{fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			statusErr := fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return &transientError{statusErr}
			}
			return statusErr
		}

		vectors = nil
		if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

// retryOperation retries an operation with exponential backoff.
// Only transient errors are retried.
func (s *Service) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var transient *transientError
		if !errors.As(err, &transient) {
			return err
		}

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, transient.err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// transientError marks failures worth retrying (connection errors, 5xx, 429).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Embed generates embeddings for the given texts (legacy method).
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.EmbedDocuments(ctx, texts)
}
