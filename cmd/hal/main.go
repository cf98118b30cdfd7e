// Command hal runs the HAL job orchestrator: the HTTP API, the batch
// monitor/time scheduler loops, and the status reconciliation loop, all in
// one process. Structure grounded on the teacher's cmd/worker entrypoint
// (a thin main delegating to a cobra root command).
package main

import (
	"fmt"
	"os"

	"github.com/nexar/hal/cmd/hal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
