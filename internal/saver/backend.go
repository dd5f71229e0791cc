package saver

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Backend is one independent persistence target.
//
// Write must reject an occupied name with ErrWriteConflict instead of
// overwriting it: two harvesters can both observe a name as free, and the
// backend is the only place where that race is settled.
type Backend interface {
	// Name identifies the backend in logs and results
	Name() string
	// EnsureNamespace creates the parent namespace; ErrNamespaceExists if it is already there
	EnsureNamespace(ctx context.Context, namespace string) error
	Exists(ctx context.Context, name string) (bool, error)
	// ReadStructured and ReadBinary return ErrNotFound for absent names
	ReadStructured(ctx context.Context, name string) (any, error)
	ReadBinary(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, content Content) error
}

// Outcome of saving one artifact on one backend
type Outcome string

const (
	OutcomeWritten   Outcome = "WRITTEN"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeFailed    Outcome = "FAILED"
)

// Result describes what a save did on a single backend
type Result struct {
	Backend string
	Name    string // name written or found identical; the last name tried on failure
	Outcome Outcome
	Err     error
}

// Namespace returns the parent namespace of an artifact name.
func Namespace(name string) string {
	return path.Dir(name)
}

// DisambiguatedName returns the i-th alternative name for an artifact,
// e.g. "/USTR/file.json" -> "/USTR/file(2).json". Structured copies always
// end in .json; binary copies keep their extension.
func DisambiguatedName(name string, kind Kind, i int) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if kind == KindStructured {
		ext = ".json"
	}
	return fmt.Sprintf("%s(%d)%s", stem, i, ext)
}
