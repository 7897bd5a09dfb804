package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/llm-d/llm-d-fleet-consistency/internal/fleet"
)

// rankingResult is printed by the nodes subcommands.
type rankingResult struct {
	Nodes              []string `json:"nodes"`
	AvailableCPU       *float64 `json:"availableCPU,omitempty"`
	AvailableMemoryGiB *int64   `json:"availableMemoryGiB,omitempty"`
}

func newNodesCmd(e *env) *cobra.Command {
	var selector string

	rank := func(cmd *cobra.Command) (*fleet.Ranking, error) {
		parsed, err := labels.Parse(selector)
		if err != nil {
			return nil, fmt.Errorf("parsing selector: %w", err)
		}
		nodes := fleet.NewClientNodeSource(e.clients.Client, fleet.WithSelector(parsed))
		return fleet.RankFleet(cmd.Context(), nodes, fleet.NewDynamicMetricsSource(e.clients.Dynamic))
	}

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Rank nodes by available CPU and memory",
	}
	cmd.PersistentFlags().StringVarP(&selector, "selector", "l", "", "Label selector restricting the nodes considered")

	cmd.AddCommand(&cobra.Command{
		Use:   "most-cpu",
		Short: "List the nodes with the most available CPU cores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := rank(cmd)
			if err != nil {
				return err
			}
			names, cpu := r.MostCPU()
			return printYAML(cmd.OutOrStdout(), rankingResult{Nodes: nonNil(names), AvailableCPU: &cpu})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "most-memory",
		Short: "List the nodes with the most available memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := rank(cmd)
			if err != nil {
				return err
			}
			names, memory := r.MostMemory()
			return printYAML(cmd.OutOrStdout(), rankingResult{Nodes: nonNil(names), AvailableMemoryGiB: &memory})
		},
	})

	var (
		cpu    float64
		memory int64
	)
	fit := &cobra.Command{
		Use:   "fit --cpu CORES --memory GIB",
		Short: "List the nodes with at least the given CPU cores and GiB of memory available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := rank(cmd)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), rankingResult{Nodes: nonNil(r.MatchingMinimum(cpu, memory))})
		},
	}
	fit.Flags().Float64Var(&cpu, "cpu", 0, "Minimum available CPU cores")
	fit.Flags().Int64Var(&memory, "memory", 0, "Minimum available memory in GiB")
	cmd.AddCommand(fit)

	return cmd
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
