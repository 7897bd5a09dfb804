package cli

import (
	"github.com/spf13/cobra"
)

func newDeleteCmd(e *env) *cobra.Command {
	var (
		target targetFlags
		noWait bool
	)

	cmd := &cobra.Command{
		Use:   "delete KIND NAME",
		Short: "Delete a resource and wait until it is gone",
		Long: "Deletes the resource and polls until the API server answers NotFound. " +
			"Deleting a resource that does not exist succeeds.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := target.ref(args)
			if err != nil {
				return err
			}
			if noWait {
				return e.store().Delete(cmd.Context(), ref)
			}
			cfg := e.configFor(ref.GVK.Kind)
			if err := e.waiter(cfg.Lifecycle).DeleteAndWait(cmd.Context(), ref); err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), waitResult{Resource: ref.String()})
		},
	}

	target.bind(cmd.Flags())
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once the delete request is accepted")
	return cmd
}
