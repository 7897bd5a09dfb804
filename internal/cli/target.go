package cli

import (
	"github.com/spf13/pflag"

	"github.com/llm-d/llm-d-fleet-consistency/internal/resource"
)

// targetFlags address a single resource as KIND NAME plus flags.
type targetFlags struct {
	apiVersion string
	namespace  string
}

func (t *targetFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&t.apiVersion, "api-version", "v1", "apiVersion of the resource, e.g. apps/v1")
	fs.StringVarP(&t.namespace, "namespace", "n", "default", "Namespace of the resource; empty for cluster-scoped kinds")
}

func (t *targetFlags) ref(args []string) (resource.Ref, error) {
	return resource.NewRef(t.apiVersion, args[0], t.namespace, args[1])
}
