package mapping

import (
	"context"
	"errors"

	"discoops/internal/metrics"
)

// instrumented counts store calls per backend.
type instrumented struct {
	Store
	backend string
}

func (s *instrumented) Get(ctx context.Context, namespace, key string) (string, error) {
	v, err := s.Store.Get(ctx, namespace, key)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordMappingOperation(s.backend, "get", nil)
	} else {
		metrics.RecordMappingOperation(s.backend, "get", err)
	}
	return v, err
}

func (s *instrumented) Set(ctx context.Context, namespace, key, value string) error {
	err := s.Store.Set(ctx, namespace, key, value)
	metrics.RecordMappingOperation(s.backend, "set", err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, namespace, key string) error {
	err := s.Store.Delete(ctx, namespace, key)
	metrics.RecordMappingOperation(s.backend, "delete", err)
	return err
}

func (s *instrumented) List(ctx context.Context, namespace string) (map[string]string, error) {
	m, err := s.Store.List(ctx, namespace)
	metrics.RecordMappingOperation(s.backend, "list", err)
	return m, err
}
