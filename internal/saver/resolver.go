package saver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type resolveState int

const (
	stateProbe resolveState = iota
	stateWrite
	stateSkip
)

// resolver places one artifact on one backend without overwriting differing content
type resolver struct {
	backend Backend
	logger  *slog.Logger
	content Content
	want    any // normalized structured value, nil for binary content
}

// resolve walks name, name(1), name(2), ... until it finds either a free
// name (write there) or an identical copy (skip). A write that loses a race
// to another writer re-probes the same name.
func (r *resolver) resolve(ctx context.Context, name string) (string, Outcome, error) {
	i := 0
	candidate := name
	state := stateProbe

	for {
		switch state {
		case stateProbe:
			if err := ctx.Err(); err != nil {
				return candidate, OutcomeFailed, err
			}

			exists, err := r.backend.Exists(ctx, candidate)
			if err != nil {
				return candidate, OutcomeFailed, fmt.Errorf("failed to check %s: %w", candidate, err)
			}
			if !exists {
				state = stateWrite
				continue
			}

			same, err := r.identical(ctx, candidate)
			if errors.Is(err, ErrNotFound) {
				state = stateWrite
				continue
			}
			if err != nil {
				return candidate, OutcomeFailed, fmt.Errorf("failed to compare %s: %w", candidate, err)
			}
			if same {
				state = stateSkip
				continue
			}

			i++
			candidate = DisambiguatedName(name, r.content.Kind, i)

		case stateWrite:
			err := r.backend.Write(ctx, candidate, r.content)
			if errors.Is(err, ErrWriteConflict) {
				r.logger.Debug("Name taken by a concurrent writer, probing again",
					slog.String("backend", r.backend.Name()),
					slog.String("name", candidate),
				)
				state = stateProbe
				continue
			}
			if err != nil {
				return candidate, OutcomeFailed, fmt.Errorf("failed to write %s: %w", candidate, err)
			}

			if i > 0 {
				r.logger.Info("Content is different than duplicate, labeling",
					slog.String("backend", r.backend.Name()),
					slog.String("name", candidate),
					slog.Int("label", i),
				)
			} else {
				r.logger.Info("Wrote artifact",
					slog.String("backend", r.backend.Name()),
					slog.String("name", candidate),
					slog.String("kind", r.content.Kind.String()),
				)
			}
			return candidate, OutcomeWritten, nil

		case stateSkip:
			r.logger.Info("Data is a duplicate, skipping this download",
				slog.String("backend", r.backend.Name()),
				slog.String("name", candidate),
			)
			return candidate, OutcomeDuplicate, nil
		}
	}
}

func (r *resolver) identical(ctx context.Context, name string) (bool, error) {
	if r.content.Kind == KindBinary {
		existing, err := r.backend.ReadBinary(ctx, name)
		if err != nil {
			return false, err
		}
		return bytesEqual(existing, r.content.Data), nil
	}

	existing, err := r.backend.ReadStructured(ctx, name)
	if err != nil {
		return false, err
	}
	return structurallyEqual(existing, r.want), nil
}
