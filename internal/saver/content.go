package saver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/google/go-cmp/cmp"
)

// Kind distinguishes structured documents from raw attachments
type Kind int

const (
	KindStructured Kind = iota
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Content is the payload persisted under one artifact name
type Content struct {
	Kind  Kind
	Value any    // set for KindStructured
	Data  []byte // set for KindBinary
}

// Structured wraps a JSON-like value.
func Structured(v any) Content {
	return Content{Kind: KindStructured, Value: v}
}

// Binary wraps a raw byte sequence.
func Binary(data []byte) Content {
	return Content{Kind: KindBinary, Data: data}
}

// Bytes returns the serialized form that backends store.
func (c Content) Bytes() ([]byte, error) {
	if c.Kind == KindBinary {
		return c.Data, nil
	}

	data, err := json.Marshal(c.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structured content: %w", err)
	}
	return data, nil
}

// DecodeStructured parses stored structured content back into a generic value.
// Numbers decode as json.Number so large integers keep their exact value.
func DecodeStructured(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to decode structured content: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode structured content: trailing data after value")
	}
	return v, nil
}

// normalize round-trips v through JSON so it compares equal to what a backend reads back.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structured content: %w", err)
	}
	return DecodeStructured(data)
}

// numbersEqual compares decoded numbers by exact value, so 2 and 2.0 match
// while integers beyond float64 precision stay distinct.
var numbersEqual = cmp.Comparer(func(a, b json.Number) bool {
	x, okX := new(big.Rat).SetString(a.String())
	y, okY := new(big.Rat).SetString(b.String())
	if !okX || !okY {
		return a == b
	}
	return x.Cmp(y) == 0
})

func structurallyEqual(existing, want any) bool {
	return cmp.Equal(existing, want, numbersEqual)
}

func bytesEqual(existing, want []byte) bool {
	return bytes.Equal(existing, want)
}
