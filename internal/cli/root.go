// Package cli implements the consistencyctl commands on top of the updater,
// readiness and fleet packages.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/yaml"

	"github.com/llm-d/llm-d-fleet-consistency/internal/config"
	"github.com/llm-d/llm-d-fleet-consistency/internal/logging"
	"github.com/llm-d/llm-d-fleet-consistency/internal/metrics"
	"github.com/llm-d/llm-d-fleet-consistency/internal/resource"
)

const (
	flagConfig       = "config"
	flagPrintMetrics = "print-metrics"
)

// ClientsFactory connects to the cluster described by cfg.
type ClientsFactory func(cfg *config.Config) (*resource.Clients, error)

// DefaultClientsFactory builds clients from the kubeconfig settings of cfg.
func DefaultClientsFactory(cfg *config.Config) (*resource.Clients, error) {
	restConfig, err := resource.BuildRESTConfig(cfg.Kubeconfig, cfg.Context)
	if err != nil {
		return nil, err
	}
	return resource.NewClients(restConfig)
}

// env is the state shared by the subcommands of one invocation.
type env struct {
	newClients ClientsFactory

	configFile   string
	printMetrics bool

	cfg      *config.Config
	timing   config.TimingConfigData
	clients  *resource.Clients
	registry *prometheus.Registry
	recorder *metrics.Recorder
}

// NewRootCmd returns the consistencyctl command tree.
func NewRootCmd(newClients ClientsFactory) *cobra.Command {
	e := &env{newClients: newClients}

	cmd := &cobra.Command{
		Use:   "consistencyctl",
		Short: "Consistent updates, readiness waits and node ranking against a Kubernetes API server",
		Long: "consistencyctl performs conflict-safe updates of resources, waits for resources to reach " +
			"a target state and ranks nodes by available capacity.",
		SilenceUsage:      true,
		PersistentPreRunE: e.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !e.printMetrics {
				return nil
			}
			return metrics.WriteText(cmd.ErrOrStderr(), e.registry)
		},
	}

	flags := cmd.PersistentFlags()
	config.BindFlags(flags)
	flags.StringVar(&e.configFile, flagConfig, "", "Path to a config file")
	flags.BoolVar(&e.printMetrics, flagPrintMetrics, false, "Print collected metrics to stderr on exit")

	cmd.AddCommand(newUpdateCmd(e))
	cmd.AddCommand(newWaitCmd(e))
	cmd.AddCommand(newDeleteCmd(e))
	cmd.AddCommand(newNodesCmd(e))
	return cmd
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v, e.configFile)
	if err != nil {
		return err
	}
	e.cfg = cfg

	logging.NewLogger(logging.ParseLevel(cfg.LogLevel), false, cmd.ErrOrStderr())
	logger := ctrl.Log.WithName("consistencyctl")
	cmd.SetContext(logr.NewContext(commandContext(cmd), logger))

	e.registry = prometheus.NewRegistry()
	if e.recorder, err = metrics.NewRecorder(e.registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if e.clients, err = e.newClients(cfg); err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}

	e.timing = config.TimingConfigData{}
	if cfg.TimingConfigMap != "" {
		namespace, name, _ := cfg.TimingConfigMapKey()
		if e.timing, err = config.LoadTimingConfigMap(cmd.Context(), e.clients.Client, namespace, name); err != nil {
			return err
		}
	}
	return nil
}

// configFor returns the settings with the overrides of kind applied.
func (e *env) configFor(kind string) config.Config {
	return e.timing.ForKind(*e.cfg, kind)
}

func (e *env) store() resource.Store {
	return resource.NewClientStore(e.clients.Client)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("rendering output: %w", err)
	}
	_, err = w.Write(out)
	return err
}
