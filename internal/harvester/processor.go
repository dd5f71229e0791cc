package harvester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
	"github.com/cuongbtq/docharvest/internal/saver"
)

// processJob downloads one job's URL and saves the document
func (h *Harvester) processJob(ctx context.Context, job jobqueue.Job) error {
	logger := h.logger.With(
		slog.Int64("job_id", job.JobID),
		slog.String("url", job.URL),
	)
	logger.Info("Processing job")

	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	fetchCtx := ctx
	if h.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, h.fetchTimeout)
		defer cancel()
	}

	doc, err := h.fetcher.Fetch(fetchCtx, job.URL)
	if err != nil {
		return err
	}

	results, err := h.save(ctx, doc)
	for _, r := range results {
		logger.Info("Job saved",
			slog.String("backend", r.Backend),
			slog.String("name", r.Name),
			slog.String("outcome", string(r.Outcome)),
		)
	}
	return err
}

// save stores JSON objects through the envelope path and everything else as
// raw bytes. A JSON object without the payload field is stored whole.
func (h *Harvester) save(ctx context.Context, doc *Document) ([]saver.Result, error) {
	isJSON := isJSONDocument(doc)

	name, err := ArtifactName(doc.URL, isJSON)
	if err != nil {
		return nil, err
	}

	if isJSON {
		decoded, err := saver.DecodeStructured(doc.Body)
		if envelope, ok := decoded.(map[string]any); err == nil && ok {
			results, err := h.saver.SaveJSON(ctx, name, envelope)
			if !errors.Is(err, saver.ErrMissingPayload) {
				return results, err
			}
			h.logger.Debug("Document has no payload field, storing it whole",
				slog.String("name", name),
			)
			return h.saver.Save(ctx, name, saver.Structured(envelope))
		}
	}

	return h.saver.SaveBinary(ctx, name, doc.Body)
}

func isJSONDocument(doc *Document) bool {
	if mt, _, err := mime.ParseMediaType(doc.ContentType); err == nil {
		if mt == "application/json" || strings.HasSuffix(mt, "+json") {
			return true
		}
	}

	u, err := url.Parse(doc.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".json")
}

// ArtifactName derives a save name from a URL path. The root path becomes
// /index; JSON documents without an extension get .json.
func ArtifactName(rawURL string, isJSON bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", saver.ErrInvalidName, err)
	}

	name := path.Clean("/" + u.Path)
	if name == "/" {
		name = "/index"
	}
	if isJSON && path.Ext(name) == "" {
		name += ".json"
	}
	return name, nil
}
