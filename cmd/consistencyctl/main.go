package main

import (
	"os"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-fleet-consistency/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.DefaultClientsFactory).ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		os.Exit(1)
	}
}
