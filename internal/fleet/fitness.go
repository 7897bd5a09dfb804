// Package fleet ranks the nodes of a cluster by the resources still available
// on them, so that a workload can be placed on a node that fits it.
//
// Availability is computed conservatively: allocatable memory is rounded down
// to whole GiB while CPU and memory usage are rounded up, to whole cores and
// whole GiB respectively. Negative availability is kept as is, so an
// overcommitted node never matches a minimum.
package fleet

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	nanocoresPerCore = int64(1_000_000_000)
	kibPerGiB        = int64(1 << 20)
	gibShift         = 30
)

// NodeUsage is the live consumption reported by the metrics API.
type NodeUsage struct {
	CPUNanocores int64
	MemoryKiB    int64
}

// NodeCapacity pairs a node's allocatable resources with its usage taken
// from the same snapshot.
type NodeCapacity struct {
	Name                   string
	AllocatableCPUCores    float64
	AllocatableMemoryBytes int64
	Usage                  NodeUsage
}

// NodeFitness is the resources still available on a node.
type NodeFitness struct {
	Name               string
	AvailableCPU       float64
	AvailableMemoryGiB int64
}

// Fitness derives the available CPU cores and whole GiB of memory.
func (n NodeCapacity) Fitness() NodeFitness {
	return NodeFitness{
		Name:               n.Name,
		AvailableCPU:       n.AllocatableCPUCores - float64(ceilDiv(n.Usage.CPUNanocores, nanocoresPerCore)),
		AvailableMemoryGiB: n.AllocatableMemoryBytes>>gibShift - ceilDiv(n.Usage.MemoryKiB, kibPerGiB),
	}
}

// ceilDiv rounds a non-negative quotient up.
func ceilDiv(n, d int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// ParseNodeCapacity builds a NodeCapacity from the quantity strings found on
// a node ("8", "7500m", "32863880Ki") and in its metrics ("2105213n", "4Gi").
func ParseNodeCapacity(name, allocCPU, allocMem, usageCPU, usageMem string) (NodeCapacity, error) {
	quantities := make([]resource.Quantity, 4)
	for i, s := range []string{allocCPU, allocMem, usageCPU, usageMem} {
		q, err := resource.ParseQuantity(s)
		if err != nil {
			return NodeCapacity{}, fmt.Errorf("node %s: parsing quantity %q: %w", name, s, err)
		}
		quantities[i] = q
	}
	return NodeCapacity{
		Name:                   name,
		AllocatableCPUCores:    coresOf(quantities[0]),
		AllocatableMemoryBytes: quantities[1].Value(),
		Usage:                  usageOf(quantities[2], quantities[3]),
	}, nil
}

func coresOf(q resource.Quantity) float64 {
	return float64(q.MilliValue()) / 1000
}

func usageOf(cpu, memory resource.Quantity) NodeUsage {
	return NodeUsage{
		CPUNanocores: cpu.ScaledValue(resource.Nano),
		MemoryKiB:    ceilDiv(memory.Value(), 1024),
	}
}
