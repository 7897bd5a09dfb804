// Package resource gives the consistency helpers a generic view of the remote
// store: a resource is a named, versioned unstructured document, addressed by
// its kind, namespace and name. The store assigns and increments versions; the
// client only echoes back the version it last read.
package resource

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

var (
	errMissingKind = errors.New("resource reference has no kind")
	errMissingName = errors.New("resource reference has no name")
)

// Ref identifies a resource by kind, namespace and name.
type Ref struct {
	GVK       schema.GroupVersionKind
	Namespace string
	Name      string
}

// NewRef builds a Ref from an apiVersion string ("v1", "apps/v1") and a kind.
func NewRef(apiVersion, kind, namespace, name string) (Ref, error) {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return Ref{}, fmt.Errorf("parsing apiVersion %q: %w", apiVersion, err)
	}
	ref := Ref{
		GVK:       gv.WithKind(kind),
		Namespace: namespace,
		Name:      name,
	}
	return ref, ref.Validate()
}

// RefFor returns the Ref of an existing document.
func RefFor(obj *unstructured.Unstructured) Ref {
	return Ref{
		GVK:       obj.GroupVersionKind(),
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
	}
}

// Validate checks that the reference can address a single resource.
func (r Ref) Validate() error {
	if r.GVK.Kind == "" {
		return errMissingKind
	}
	if r.Name == "" {
		return errMissingName
	}
	return nil
}

// Key returns the namespaced name used by the store client.
func (r Ref) Key() types.NamespacedName {
	return types.NamespacedName{Namespace: r.Namespace, Name: r.Name}
}

// String renders "Kind namespace/name", or "Kind name" for cluster-scoped resources.
func (r Ref) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s %s", r.GVK.Kind, r.Name)
	}
	return fmt.Sprintf("%s %s/%s", r.GVK.Kind, r.Namespace, r.Name)
}

// Empty returns an unstructured object carrying only the reference's identity,
// ready to be filled by a Get.
func (r Ref) Empty() *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(r.GVK)
	obj.SetNamespace(r.Namespace)
	obj.SetName(r.Name)
	return obj
}
