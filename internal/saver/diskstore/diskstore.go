// Package diskstore stores artifacts as files under a root directory.
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/docharvest/internal/saver"
)

const (
	defaultName     = "disk"
	defaultPermFile = 0o644
	defaultPermDir  = 0o755
)

// Options configures a Store
type Options struct {
	Name     string      // backend name in logs, default "disk"
	Root     string      // required
	PermFile os.FileMode // 0 means 0644
	PermDir  os.FileMode // 0 means 0755
}

// Store is a saver.Backend rooted at a local directory.
// Names map to {root}/{name}; a leading slash in a name is relative to root.
type Store struct {
	name  string
	root  string
	permF os.FileMode
	permD os.FileMode
}

var _ saver.Backend = (*Store)(nil)

// New creates a filesystem Store
func New(opts *Options) (*Store, error) {
	if opts == nil || strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("disk store root is required")
	}

	name := opts.Name
	if name == "" {
		name = defaultName
	}
	permF := opts.PermFile
	if permF == 0 {
		permF = defaultPermFile
	}
	permD := opts.PermDir
	if permD == 0 {
		permD = defaultPermDir
	}

	return &Store{
		name:  name,
		root:  filepath.Clean(opts.Root),
		permF: permF,
		permD: permD,
	}, nil
}

func (s *Store) Name() string { return s.name }

// Root returns the directory artifacts are stored under
func (s *Store) Root() string { return s.root }

// EnsureNamespace creates the directory for namespace.
func (s *Store) EnsureNamespace(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := s.mapPath(namespace)
	if err != nil {
		return err
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return fmt.Errorf("%w: %s", saver.ErrNamespaceExists, dir)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return os.MkdirAll(dir, s.permD)
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p, err := s.mapPath(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Store) ReadBinary(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.mapPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", saver.ErrNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) ReadStructured(ctx context.Context, name string) (any, error) {
	data, err := s.ReadBinary(ctx, name)
	if err != nil {
		return nil, err
	}
	return saver.DecodeStructured(data)
}

// Write stages the content in a temporary file beside the target and links it
// into place, so readers only ever see complete artifacts. An existing file
// yields saver.ErrWriteConflict.
func (s *Store) Write(ctx context.Context, name string, content saver.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.mapPath(name)
	if err != nil {
		return err
	}

	data, err := content.Bytes()
	if err != nil {
		return err
	}

	tmp, err := s.stage(p, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	// link fails atomically when the target already exists
	if err := os.Link(tmp, p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", saver.ErrWriteConflict, name)
		}
		return err
	}
	return nil
}

// stage writes data to a hidden temporary file in the target's directory.
func (s *Store) stage(p string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return "", err
	}

	tmp := f.Name()
	if err := writeSynced(f, data, s.permF); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func writeSynced(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// mapPath joins name onto root, rejecting names that escape it.
func (s *Store) mapPath(name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, "/")))
	if rel == "" || rel == "." {
		return s.root, nil
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %s", saver.ErrInvalidName, name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", saver.ErrInvalidName, name)
	}
	return filepath.Join(s.root, rel), nil
}
