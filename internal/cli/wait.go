package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/llm-d/llm-d-fleet-consistency/internal/config"
	"github.com/llm-d/llm-d-fleet-consistency/internal/readiness"
	"github.com/llm-d/llm-d-fleet-consistency/internal/resource"
)

var (
	errMissingPath = errors.New("--path is required")
	errMissingUID  = errors.New("--previous-uid is required")
)

// waitResult is printed when a wait succeeds.
type waitResult struct {
	Resource        string `json:"resource"`
	Found           bool   `json:"found"`
	UID             string `json:"uid,omitempty"`
	ResourceVersion string `json:"resourceVersion,omitempty"`
	Phase           string `json:"phase,omitempty"`
}

func newWaitResult(ref resource.Ref, obs readiness.Observation) waitResult {
	r := waitResult{Resource: ref.String(), Found: obs.Found}
	if obs.Object != nil {
		r.UID = string(obs.Object.GetUID())
		r.ResourceVersion = obs.Object.GetResourceVersion()
		r.Phase, _, _ = unstructured.NestedString(obs.Object.Object, "status", "phase")
	}
	return r
}

func newWaitCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for a resource to reach a target state",
	}
	cmd.AddCommand(newWaitExistsCmd(e))
	cmd.AddCommand(newWaitFieldCmd(e))
	cmd.AddCommand(newWaitDeletedCmd(e))
	cmd.AddCommand(newWaitRestartedCmd(e))
	return cmd
}

// waitCommand builds a wait subcommand; run performs the wait with the
// settings of the resource's kind.
func waitCommand(
	e *env,
	use, short string,
	run func(cmd *cobra.Command, ref resource.Ref, cfg config.Config) (readiness.Observation, error),
) *cobra.Command {
	target := &targetFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := target.ref(args)
			if err != nil {
				return err
			}
			obs, err := run(cmd, ref, e.configFor(ref.GVK.Kind))
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), newWaitResult(ref, obs))
		},
	}
	target.bind(cmd.Flags())
	return cmd
}

func (e *env) waiter(timing config.Timing) *readiness.Waiter {
	return readiness.New(e.store(), timing.Poller(), readiness.WithRecorder(e.recorder))
}

func newWaitExistsCmd(e *env) *cobra.Command {
	var delay time.Duration
	cmd := waitCommand(e, "exists KIND NAME", "Wait until the resource can be read",
		func(cmd *cobra.Command, ref resource.Ref, cfg config.Config) (readiness.Observation, error) {
			return e.waiter(cfg.Readiness).Wait(cmd.Context(), ref, readiness.Exists, readiness.WithInitialDelay(delay))
		})
	cmd.Flags().DurationVar(&delay, "initial-delay", 0, "Delay before the first observation")
	return cmd
}

func newWaitFieldCmd(e *env) *cobra.Command {
	var (
		path  string
		delay time.Duration
	)
	cmd := waitCommand(e, "field KIND NAME --path status.FIELD", "Wait until a readiness field is populated",
		func(cmd *cobra.Command, ref resource.Ref, cfg config.Config) (readiness.Observation, error) {
			if path == "" {
				return readiness.Observation{}, errMissingPath
			}
			if !cmd.Flags().Changed("initial-delay") {
				delay = cfg.CreateGrace
			}
			return e.waiter(cfg.Readiness).WaitForField(cmd.Context(), ref, strings.Split(path, "."),
				readiness.WithInitialDelay(delay))
		})
	cmd.Flags().StringVar(&path, "path", "", "Dot-separated path of the field, e.g. status.storageClassName")
	cmd.Flags().DurationVar(&delay, "initial-delay", 0, "Delay before the first observation (defaults to --create-grace)")
	return cmd
}

func newWaitDeletedCmd(e *env) *cobra.Command {
	cmd := waitCommand(e, "deleted KIND NAME", "Wait until the resource is no longer served",
		func(cmd *cobra.Command, ref resource.Ref, cfg config.Config) (readiness.Observation, error) {
			return readiness.Observation{}, e.waiter(cfg.Lifecycle).WaitForDeletion(cmd.Context(), ref)
		})
	return cmd
}

func newWaitRestartedCmd(e *env) *cobra.Command {
	var (
		previousUID string
		delay       time.Duration
	)
	cmd := waitCommand(e, "restarted KIND NAME --previous-uid UID",
		"Wait until a new instance of the resource is Running",
		func(cmd *cobra.Command, ref resource.Ref, cfg config.Config) (readiness.Observation, error) {
			if previousUID == "" {
				return readiness.Observation{}, errMissingUID
			}
			if !cmd.Flags().Changed("initial-delay") {
				delay = cfg.RestartGrace
			}
			return e.waiter(cfg.Lifecycle).WaitForRestart(cmd.Context(), ref, types.UID(previousUID),
				readiness.WithInitialDelay(delay))
		})
	cmd.Flags().StringVar(&previousUID, "previous-uid", "", "uid of the instance that is being replaced")
	cmd.Flags().DurationVar(&delay, "initial-delay", 0, "Delay before the first observation (defaults to --restart-grace)")
	return cmd
}
