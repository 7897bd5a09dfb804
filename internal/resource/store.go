package resource

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/llm-d/llm-d-fleet-consistency/internal/logging"
)

// Store is the remote, eventually-consistent resource store.
//
// Errors are returned as the store reports them so callers can Classify them:
// a stale version on Update is a Conflict, an absent resource a NotFound.
type Store interface {
	// Get reads the current document, including its resourceVersion.
	Get(ctx context.Context, ref Ref) (*unstructured.Unstructured, error)
	// Create submits a new document.
	Create(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	// Update submits obj, which must carry the resourceVersion last read.
	Update(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	// Delete removes the resource. Deleting an absent resource succeeds.
	Delete(ctx context.Context, ref Ref) error
}

// ClientStore implements Store on a controller-runtime client.
type ClientStore struct {
	client client.Client
}

var _ Store = (*ClientStore)(nil)

// NewClientStore wraps a controller-runtime client.
func NewClientStore(c client.Client) *ClientStore {
	return &ClientStore{client: c}
}

// Get reads the resource fresh from the store.
func (s *ClientStore) Get(ctx context.Context, ref Ref) (*unstructured.Unstructured, error) {
	obj := ref.Empty()
	if err := s.client.Get(ctx, ref.Key(), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Create submits obj and returns the stored document.
func (s *ClientStore) Create(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	created := obj.DeepCopy()
	if err := s.client.Create(ctx, created); err != nil {
		return nil, err
	}
	ctrl.LoggerFrom(ctx).V(logging.TRACE).Info("Created resource",
		"resource", RefFor(created).String(),
		"resourceVersion", created.GetResourceVersion())
	return created, nil
}

// Update submits obj conditionally on its resourceVersion.
func (s *ClientStore) Update(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	updated := obj.DeepCopy()
	if err := s.client.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the resource, treating an already-absent resource as deleted.
func (s *ClientStore) Delete(ctx context.Context, ref Ref) error {
	if err := s.client.Delete(ctx, ref.Empty()); client.IgnoreNotFound(err) != nil {
		return fmt.Errorf("deleting %s: %w", ref, err)
	}
	return nil
}
