package fleet

// Ranking holds the fitness of every node of one fleet snapshot, in input order.
type Ranking struct {
	nodes []NodeFitness
}

// Rank computes the fitness of each node.
func Rank(nodes []NodeCapacity) *Ranking {
	r := &Ranking{nodes: make([]NodeFitness, 0, len(nodes))}
	for _, n := range nodes {
		r.nodes = append(r.nodes, n.Fitness())
	}
	return r
}

// Nodes returns the fitness of every node.
func (r *Ranking) Nodes() []NodeFitness {
	return append([]NodeFitness(nil), r.nodes...)
}

// MostCPU returns every node sharing the highest available CPU, and that value.
// An empty fleet yields no nodes and zero.
func (r *Ranking) MostCPU() ([]string, float64) {
	return mostAvailable(r.nodes, func(n NodeFitness) float64 { return n.AvailableCPU })
}

// MostMemory returns every node sharing the highest available memory in GiB,
// and that value. An empty fleet yields no nodes and zero.
func (r *Ranking) MostMemory() ([]string, int64) {
	return mostAvailable(r.nodes, func(n NodeFitness) int64 { return n.AvailableMemoryGiB })
}

// MatchingMinimum returns the nodes with at least cpu cores and memoryGiB of
// memory available, in input order.
func (r *Ranking) MatchingMinimum(cpu float64, memoryGiB int64) []string {
	var names []string
	for _, n := range r.nodes {
		if n.AvailableCPU >= cpu && n.AvailableMemoryGiB >= memoryGiB {
			names = append(names, n.Name)
		}
	}
	return names
}

func mostAvailable[V int64 | float64](nodes []NodeFitness, value func(NodeFitness) V) ([]string, V) {
	var (
		best  V
		names []string
	)
	for i, n := range nodes {
		v := value(n)
		switch {
		case i == 0 || v > best:
			best = v
			names = []string{n.Name}
		case v == best:
			names = append(names, n.Name)
		}
	}
	return names, best
}
