// Package objectstore stores artifacts as objects in a Google Cloud Storage bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cuongbtq/docharvest/internal/saver"
)

const defaultName = "gcs"

// Options configures a Store
type Options struct {
	Name     string // backend name in logs, default "gcs"
	Bucket   string // required
	Endpoint string // optional, e.g. a local emulator
	// WithoutAuthentication disables credential lookup, for emulators
	WithoutAuthentication bool
}

// bucket is the narrow object API the Store needs
type bucket interface {
	exists(ctx context.Context, key string) (bool, error)
	read(ctx context.Context, key string) ([]byte, error)
	// create must fail with saver.ErrWriteConflict if key already exists
	create(ctx context.Context, key string, data []byte, contentType string) error
}

// Store is a saver.Backend over an object bucket. Keys equal artifact names
// without the leading slash; namespaces are implicit.
type Store struct {
	name   string
	bucket bucket
	client *storage.Client
	logger *slog.Logger
}

var _ saver.Backend = (*Store)(nil)

// New connects to GCS and returns a Store for opts.Bucket
func New(ctx context.Context, opts *Options, logger *slog.Logger) (*Store, error) {
	if opts == nil || opts.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}

	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.WithoutAuthentication {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	logger.Info("Object store initialized",
		slog.String("bucket", opts.Bucket),
		slog.String("endpoint", opts.Endpoint),
	)

	s := newStore(opts.Name, &gcsBucket{handle: client.Bucket(opts.Bucket)}, logger)
	s.client = client
	return s, nil
}

func newStore(name string, b bucket, logger *slog.Logger) *Store {
	if name == "" {
		name = defaultName
	}
	return &Store{
		name:   name,
		bucket: b,
		logger: logger,
	}
}

func (s *Store) Name() string { return s.name }

// EnsureNamespace is a no-op: object stores have no directories.
func (s *Store) EnsureNamespace(ctx context.Context, namespace string) error {
	return nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	return s.bucket.exists(ctx, objectKey(name))
}

func (s *Store) ReadBinary(ctx context.Context, name string) ([]byte, error) {
	return s.bucket.read(ctx, objectKey(name))
}

func (s *Store) ReadStructured(ctx context.Context, name string) (any, error) {
	data, err := s.bucket.read(ctx, objectKey(name))
	if err != nil {
		return nil, err
	}
	return saver.DecodeStructured(data)
}

func (s *Store) Write(ctx context.Context, name string, content saver.Content) error {
	data, err := content.Bytes()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if content.Kind == saver.KindStructured {
		contentType = "application/json"
	}

	return s.bucket.create(ctx, objectKey(name), data, contentType)
}

// Close releases the underlying client
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	s.logger.Info("Closing object store client")
	return s.client.Close()
}

func objectKey(name string) string {
	return strings.TrimLeft(name, "/")
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b *gcsBucket) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.handle.Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object %s: %w", key, err)
}

func (b *gcsBucket) read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", saver.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// create uploads with a DoesNotExist precondition so the bucket itself
// rejects a second writer.
func (b *gcsBucket) create(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.handle.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return b.writeError(key, err)
	}
	if err := w.Close(); err != nil {
		return b.writeError(key, err)
	}
	return nil
}

func (b *gcsBucket) writeError(key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", saver.ErrWriteConflict, key)
	}
	return fmt.Errorf("failed to write object %s: %w", key, err)
}
