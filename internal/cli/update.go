package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/llm-d/llm-d-fleet-consistency/internal/updater"
)

var errEmptyPatch = errors.New("--merge is required")

func newUpdateCmd(e *env) *cobra.Command {
	var (
		target targetFlags
		patch  string
	)

	cmd := &cobra.Command{
		Use:   "update KIND NAME --merge PATCH",
		Short: "Apply a JSON merge patch, retrying on version conflicts",
		Long: "Reads the resource, applies the merge patch to the latest version and submits it " +
			"conditionally on that version. Conflicts are retried until the update timeout; any other " +
			"error is returned at once.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if patch == "" {
				return errEmptyPatch
			}
			ref, err := target.ref(args)
			if err != nil {
				return err
			}
			cfg := e.configFor(ref.GVK.Kind)
			u := updater.New(e.store(), cfg.Update.Poller(), updater.WithRecorder(e.recorder))

			updated, err := u.Update(cmd.Context(), ref, updater.MergePatchMutation([]byte(patch)))
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), updated.Object)
		},
	}

	target.bind(cmd.Flags())
	cmd.Flags().StringVar(&patch, "merge", "", "JSON merge patch (RFC 7386) to apply")
	return cmd
}
