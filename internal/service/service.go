// Package service implements saving and loading artworks on top of a record store.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ASHISH26940/artstore/internal/store"
)

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a load of an id that holds no artwork.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artwork %d does not exist", e.ID)
}

// Service saves and loads artworks. It keeps no state of its own.
type Service struct {
	store store.RecordStore
}

// New returns a Service backed by s.
func New(s store.RecordStore) *Service {
	return &Service{store: s}
}

// Save stores data under a newly assigned id and returns it.
func (s *Service) Save(ctx context.Context, version int32, data string) (int64, error) {
	if data == "" {
		return 0, &ValidationError{Field: "data", Reason: "must not be empty"}
	}
	return s.store.Create(ctx, version, data)
}

// Load returns the payload stored under id, byte for byte.
func (s *Service) Load(ctx context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	return rec.Data, nil
}

// ParseVersion parses the version request field.
func ParseVersion(raw string) (int32, error) {
	v, err := parseInt(raw, "version", 32)
	return int32(v), err
}

// ParseID parses the id request field.
func ParseID(raw string) (int64, error) {
	return parseInt(raw, "id", 64)
}

func parseInt(raw, field string, bits int) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}
	n, err := strconv.ParseInt(raw, 10, bits)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	return n, nil
}
