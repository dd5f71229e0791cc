package harvester

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
	"github.com/cuongbtq/docharvest/internal/jobqueue/memstore"
	"github.com/cuongbtq/docharvest/internal/saver"
	"github.com/cuongbtq/docharvest/internal/saver/diskstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDocServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/USTR/file.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": "Hello world", "meta": {"page": 1}}`))
	})
	mux.HandleFunc("/docs/a.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 binary"))
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"title": "no envelope"}`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newQueue(t *testing.T) *jobqueue.Queue {
	t.Helper()
	store := memstore.New()
	q, err := jobqueue.New(&jobqueue.Config{Logger: discardLogger(), Counter: store, List: store})
	require.NoError(t, err)
	return q
}

func newDiskSaver(t *testing.T) (*saver.Saver, string) {
	t.Helper()
	root := t.TempDir()
	disk, err := diskstore.New(&diskstore.Options{Root: root})
	require.NoError(t, err)
	s, err := saver.NewSaver(&saver.Config{Logger: discardLogger(), Backends: []saver.Backend{disk}})
	require.NoError(t, err)
	return s, root
}

func TestNew(t *testing.T) {
	q := newQueue(t)
	s, _ := newDiskSaver(t)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  &Config{Queue: q, Saver: s, Concurrency: 1, PollInterval: time.Second},
		},
		{
			name:    "missing queue",
			cfg:     &Config{Saver: s, Concurrency: 1, PollInterval: time.Second},
			wantErr: "queue is required",
		},
		{
			name:    "missing saver",
			cfg:     &Config{Queue: q, Concurrency: 1, PollInterval: time.Second},
			wantErr: "saver is required",
		},
		{
			name:    "zero concurrency",
			cfg:     &Config{Queue: q, Saver: s, PollInterval: time.Second},
			wantErr: "concurrency must be greater than 0",
		},
		{
			name:    "zero poll interval",
			cfg:     &Config{Queue: q, Saver: s, Concurrency: 1},
			wantErr: "poll interval must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, h.ID())
		})
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		url    string
		isJSON bool
		want   string
	}{
		{url: "http://h/USTR/file.json", isJSON: true, want: "/USTR/file.json"},
		{url: "http://h/USTR/file", isJSON: true, want: "/USTR/file.json"},
		{url: "http://h/docs/a.pdf", isJSON: false, want: "/docs/a.pdf"},
		{url: "http://h/docs/a", isJSON: false, want: "/docs/a"},
		{url: "http://h/", isJSON: true, want: "/index.json"},
		{url: "http://h", isJSON: false, want: "/index"},
		{url: "http://h/a/../b/c.txt?x=1", isJSON: false, want: "/b/c.txt"},
		{url: "http://h/dir/", isJSON: false, want: "/dir"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ArtifactName(tt.url, tt.isJSON)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifactName_InvalidURL(t *testing.T) {
	_, err := ArtifactName("http://h/%zz", false)
	assert.ErrorIs(t, err, saver.ErrInvalidName)
}

func TestHTTPFetcher(t *testing.T) {
	srv := newDocServer(t)
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		doc, err := NewHTTPFetcher(srv.Client(), 0).Fetch(ctx, srv.URL+"/docs/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", doc.ContentType)
		assert.Equal(t, []byte("%PDF-1.7 binary"), doc.Body)
	})

	t.Run("non-2xx", func(t *testing.T) {
		_, err := NewHTTPFetcher(srv.Client(), 0).Fetch(ctx, srv.URL+"/gone")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusGone, statusErr.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := NewHTTPFetcher(srv.Client(), 4).Fetch(ctx, srv.URL+"/docs/a.pdf")
		assert.ErrorIs(t, err, ErrBodyTooLarge)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewHTTPFetcher(srv.Client(), 0).Fetch(cctx, srv.URL+"/docs/a.pdf")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHarvester_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := newDocServer(t)
	q := newQueue(t)
	s, root := newDiskSaver(t)

	for _, p := range []string{"/USTR/file.json", "/docs/a.pdf", "/raw", "/gone", "/USTR/file.json"} {
		_, err := q.AddJob(ctx, srv.URL+p)
		require.NoError(t, err)
	}

	h, err := New(&Config{
		Logger:       discardLogger(),
		Queue:        q,
		Saver:        s,
		Fetcher:      NewHTTPFetcher(srv.Client(), 0),
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		FetchTimeout: 5 * time.Second,
		RateLimit:    1000,
	})
	require.NoError(t, err)

	go func() { _ = h.Start(ctx) }()

	require.Eventually(t, func() bool {
		n, err := q.NumJobs(ctx)
		return err == nil && n == 0 &&
			fileExists(filepath.Join(root, "USTR", "file.json")) &&
			fileExists(filepath.Join(root, "docs", "a.pdf")) &&
			fileExists(filepath.Join(root, "raw.json"))
	}, 5*time.Second, 10*time.Millisecond)

	h.Stop()

	data, err := os.ReadFile(filepath.Join(root, "USTR", "file.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `"Hello world"`, string(data))

	data, err = os.ReadFile(filepath.Join(root, "docs", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 binary", string(data))

	data, err = os.ReadFile(filepath.Join(root, "raw.json"))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "no envelope", raw["title"])

	// the repeated identical document is a duplicate, not a second file
	entries, err := os.ReadDir(filepath.Join(root, "USTR"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, fileExists(filepath.Join(root, "gone")))
}

func TestHarvester_StopWhileIdle(t *testing.T) {
	q := newQueue(t)
	s, _ := newDiskSaver(t)

	h, err := New(&Config{
		Logger:       discardLogger(),
		Queue:        q,
		Saver:        s,
		Concurrency:  3,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = h.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	h.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// a second Stop is a no-op
	h.Stop()
}

type recordingSaver struct {
	jsonNames   []string
	binaryNames []string
}

func (r *recordingSaver) SaveJSON(_ context.Context, name string, _ map[string]any) ([]saver.Result, error) {
	r.jsonNames = append(r.jsonNames, name)
	return nil, nil
}

func (r *recordingSaver) SaveBinary(_ context.Context, name string, _ []byte) ([]saver.Result, error) {
	r.binaryNames = append(r.binaryNames, name)
	return nil, nil
}

func (r *recordingSaver) Save(context.Context, string, saver.Content) ([]saver.Result, error) {
	return nil, nil
}

type stubFetcher struct {
	doc *Document
}

func (f stubFetcher) Fetch(_ context.Context, url string) (*Document, error) {
	d := *f.doc
	d.URL = url
	return &d, nil
}

func TestProcessJob_ContentTypeRouting(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		wantJSON    []string
		wantBinary  []string
	}{
		{
			name:        "json content type",
			url:         "http://h/a",
			contentType: "application/json",
			body:        `{"results": 1}`,
			wantJSON:    []string{"/a.json"},
		},
		{
			name:        "vendor json",
			url:         "http://h/a",
			contentType: "application/vnd.api+json",
			body:        `{"results": 1}`,
			wantJSON:    []string{"/a.json"},
		},
		{
			name:        "json extension without content type",
			url:         "http://h/b.json",
			contentType: "",
			body:        `{"results": 1}`,
			wantJSON:    []string{"/b.json"},
		},
		{
			name:        "json array is stored as bytes",
			url:         "http://h/list.json",
			contentType: "application/json",
			body:        `[1, 2]`,
			wantBinary:  []string{"/list.json"},
		},
		{
			name:        "html",
			url:         "http://h/page.html",
			contentType: "text/html",
			body:        "<html></html>",
			wantBinary:  []string{"/page.html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSaver{}
			h, err := New(&Config{
				Logger:       discardLogger(),
				Queue:        newQueue(t),
				Saver:        rec,
				Fetcher:      stubFetcher{doc: &Document{ContentType: tt.contentType, Body: []byte(tt.body)}},
				Concurrency:  1,
				PollInterval: time.Second,
			})
			require.NoError(t, err)

			require.NoError(t, h.processJob(context.Background(), jobqueue.Job{JobID: 1, URL: tt.url}))
			assert.Equal(t, tt.wantJSON, rec.jsonNames)
			assert.Equal(t, tt.wantBinary, rec.binaryNames)
		})
	}
}

func TestProcessJob_LargeIntegersStayDistinct(t *testing.T) {
	s, root := newDiskSaver(t)
	doc := &Document{ContentType: "application/json"}
	h, err := New(&Config{
		Logger:       discardLogger(),
		Queue:        newQueue(t),
		Saver:        s,
		Fetcher:      stubFetcher{doc: doc},
		Concurrency:  1,
		PollInterval: time.Second,
	})
	require.NoError(t, err)
	ctx := context.Background()

	doc.Body = []byte(`{"results": {"id": 9007199254740993}}`)
	require.NoError(t, h.processJob(ctx, jobqueue.Job{JobID: 1, URL: "http://h/USTR/doc.json"}))

	doc.Body = []byte(`{"results": {"id": 9007199254740992}}`)
	require.NoError(t, h.processJob(ctx, jobqueue.Job{JobID: 2, URL: "http://h/USTR/doc.json"}))

	data, err := os.ReadFile(filepath.Join(root, "USTR", "doc.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":9007199254740993}`, string(data))

	data, err = os.ReadFile(filepath.Join(root, "USTR", "doc(1).json"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":9007199254740992}`, string(data))
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
