package fleet

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/llm-d/llm-d-fleet-consistency/internal/logging"
)

// NodeMetricsGVR addresses the per-node usage served by metrics-server.
var NodeMetricsGVR = schema.GroupVersionResource{Group: "metrics.k8s.io", Version: "v1beta1", Resource: "nodes"}

// NodeSource lists the nodes of the fleet.
type NodeSource interface {
	ListNodes(ctx context.Context) ([]corev1.Node, error)
}

// MetricsSource reads the live usage of one node.
type MetricsSource interface {
	NodeUsage(ctx context.Context, name string) (NodeUsage, error)
}

// SourceOption customizes a ClientNodeSource.
type SourceOption func(*ClientNodeSource)

// WithSelector restricts the fleet to nodes matching selector.
func WithSelector(selector labels.Selector) SourceOption {
	return func(s *ClientNodeSource) {
		s.selector = selector
	}
}

// ClientNodeSource lists nodes with a controller-runtime client.
type ClientNodeSource struct {
	client   client.Client
	selector labels.Selector
}

var _ NodeSource = (*ClientNodeSource)(nil)

// NewClientNodeSource returns a NodeSource backed by c.
func NewClientNodeSource(c client.Client, opts ...SourceOption) *ClientNodeSource {
	s := &ClientNodeSource{client: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListNodes lists the nodes, filtered by the selector if one is set.
func (s *ClientNodeSource) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	var opts []client.ListOption
	if s.selector != nil && !s.selector.Empty() {
		opts = append(opts, client.MatchingLabelsSelector{Selector: s.selector})
	}
	nodes := &corev1.NodeList{}
	if err := s.client.List(ctx, nodes, opts...); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return nodes.Items, nil
}

// DynamicMetricsSource reads NodeMetrics through the dynamic client, so the
// metrics API types are not needed in the scheme.
type DynamicMetricsSource struct {
	client dynamic.Interface
}

var _ MetricsSource = (*DynamicMetricsSource)(nil)

// NewDynamicMetricsSource returns a MetricsSource backed by c.
func NewDynamicMetricsSource(c dynamic.Interface) *DynamicMetricsSource {
	return &DynamicMetricsSource{client: c}
}

// NodeUsage reads usage.cpu and usage.memory of the node's metrics.
func (s *DynamicMetricsSource) NodeUsage(ctx context.Context, name string) (NodeUsage, error) {
	obj, err := s.client.Resource(NodeMetricsGVR).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return NodeUsage{}, err
	}
	cpu, err := nestedQuantity(obj, "usage", "cpu")
	if err != nil {
		return NodeUsage{}, err
	}
	memory, err := nestedQuantity(obj, "usage", "memory")
	if err != nil {
		return NodeUsage{}, err
	}
	return usageOf(cpu, memory), nil
}

func nestedQuantity(obj *unstructured.Unstructured, fields ...string) (resource.Quantity, error) {
	s, found, err := unstructured.NestedString(obj.Object, fields...)
	if err != nil {
		return resource.Quantity{}, err
	}
	if !found {
		return resource.Quantity{}, fmt.Errorf("%w: %v", errMissingUsage, fields)
	}
	return resource.ParseQuantity(s)
}

// Collect lists the fleet once and pairs each node's allocatable resources
// with its own usage. A usage that cannot be read fails the whole collection.
func Collect(ctx context.Context, nodes NodeSource, metrics MetricsSource) ([]NodeCapacity, error) {
	logger := ctrl.LoggerFrom(ctx)

	items, err := nodes.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	fleet := make([]NodeCapacity, 0, len(items))
	for _, node := range items {
		usage, err := metrics.NodeUsage(ctx, node.Name)
		if err != nil {
			return nil, fmt.Errorf("reading usage of node %s: %w", node.Name, err)
		}
		capacity := capacityOf(node, usage)
		logger.V(logging.DEBUG).Info("Collected node capacity",
			"node", node.Name,
			"allocatableCPU", capacity.AllocatableCPUCores,
			"allocatableMemoryBytes", capacity.AllocatableMemoryBytes,
			"usageNanocores", usage.CPUNanocores,
			"usageKiB", usage.MemoryKiB)
		fleet = append(fleet, capacity)
	}
	return fleet, nil
}

// RankFleet collects the fleet and ranks it.
func RankFleet(ctx context.Context, nodes NodeSource, metrics MetricsSource) (*Ranking, error) {
	fleet, err := Collect(ctx, nodes, metrics)
	if err != nil {
		return nil, err
	}
	return Rank(fleet), nil
}

func capacityOf(node corev1.Node, usage NodeUsage) NodeCapacity {
	allocatable := node.Status.Allocatable
	return NodeCapacity{
		Name:                   node.Name,
		AllocatableCPUCores:    coresOf(allocatable[corev1.ResourceCPU]),
		AllocatableMemoryBytes: allocatable.Memory().Value(),
		Usage:                  usage,
	}
}
