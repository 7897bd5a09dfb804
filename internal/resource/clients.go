package resource

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Clients bundles the clients used against a single cluster.
type Clients struct {
	Config  *rest.Config
	Client  client.Client
	Dynamic dynamic.Interface
}

// BuildRESTConfig loads a REST config from an explicit kubeconfig path and
// optional context. An empty path falls back to the default loading rules
// (KUBECONFIG, ~/.kube/config, in-cluster).
func BuildRESTConfig(kubeconfig, kubeContext string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}

	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	// Suppress deprecation warnings in CLI output
	cfg.WarningHandler = rest.NoWarnings{}
	return cfg, nil
}

// NewClients creates the controller-runtime and dynamic clients for cfg.
func NewClients(cfg *rest.Config) (*Clients, error) {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))

	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating controller-runtime client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating dynamic client: %w", err)
	}

	return &Clients{Config: cfg, Client: c, Dynamic: dyn}, nil
}
