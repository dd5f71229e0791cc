package saver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultPayloadField is the envelope field whose value is persisted by SaveJSON
const DefaultPayloadField = "results"

// Config holds saver configuration
type Config struct {
	Logger       *slog.Logger
	Backends     []Backend
	PayloadField string
}

// Saver writes each artifact to every configured backend.
// Backends are saved independently and in configuration order; a failure on
// one backend neither stops nor rolls back the others.
type Saver struct {
	logger       *slog.Logger
	backends     []Backend
	payloadField string
}

// NewSaver creates a new Saver instance
func NewSaver(cfg *Config) (*Saver, error) {
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	field := cfg.PayloadField
	if field == "" {
		field = DefaultPayloadField
	}

	return &Saver{
		logger:       logger,
		backends:     cfg.Backends,
		payloadField: field,
	}, nil
}

// Backends returns the names of the configured backends
func (s *Saver) Backends() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

// SaveJSON persists the payload field of envelope under name.
func (s *Saver) SaveJSON(ctx context.Context, name string, envelope map[string]any) ([]Result, error) {
	payload, ok := envelope[s.payloadField]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingPayload, s.payloadField)
	}
	return s.Save(ctx, name, Structured(payload))
}

// SaveBinary persists raw bytes under name.
func (s *Saver) SaveBinary(ctx context.Context, name string, data []byte) ([]Result, error) {
	return s.Save(ctx, name, Binary(data))
}

// Save fans content out to every backend and reports one Result per backend.
// The returned error joins the per-backend failures; each is a *BackendError.
func (s *Saver) Save(ctx context.Context, name string, content Content) ([]Result, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	var want any
	if content.Kind == KindStructured {
		normalized, err := normalize(content.Value)
		if err != nil {
			return nil, err
		}
		want = normalized
	}

	results := make([]Result, 0, len(s.backends))
	var errs []error

	for _, backend := range s.backends {
		result := s.saveTo(ctx, backend, name, content, want)
		results = append(results, result)

		if result.Err != nil {
			s.logger.Error("Failed to save artifact",
				slog.String("backend", backend.Name()),
				slog.String("name", result.Name),
				slog.String("error", result.Err.Error()),
			)
			errs = append(errs, &BackendError{
				Backend: backend.Name(),
				Name:    result.Name,
				Err:     result.Err,
			})
		}
	}

	return results, errors.Join(errs...)
}

func (s *Saver) saveTo(ctx context.Context, backend Backend, name string, content Content, want any) Result {
	namespace := Namespace(name)
	if err := backend.EnsureNamespace(ctx, namespace); err != nil {
		if !errors.Is(err, ErrNamespaceExists) {
			return Result{
				Backend: backend.Name(),
				Name:    name,
				Outcome: OutcomeFailed,
				Err:     fmt.Errorf("failed to create namespace %s: %w", namespace, err),
			}
		}
		s.logger.Debug("Namespace already exists",
			slog.String("backend", backend.Name()),
			slog.String("namespace", namespace),
		)
	}

	r := &resolver{
		backend: backend,
		logger:  s.logger,
		content: content,
		want:    want,
	}

	final, outcome, err := r.resolve(ctx, name)
	return Result{
		Backend: backend.Name(),
		Name:    final,
		Outcome: outcome,
		Err:     err,
	}
}
