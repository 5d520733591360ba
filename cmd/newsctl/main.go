// Command newsctl is the CLI entrypoint for the harvest/analyze/persist
// sentiment pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/newsctl/newsctl/internal/cli"
	"github.com/newsctl/newsctl/internal/config"
	"github.com/newsctl/newsctl/internal/tracing"
)

func main() {
	cfg := config.Default()
	ctx := context.Background()
	if err := tracing.Init(ctx, cfg.Telemetry.TracingEnabled); err != nil {
		fmt.Fprintf(os.Stderr, "newsctl: tracing init failed: %v\n", err)
	}
	defer tracing.Shutdown(ctx)

	root := cli.NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "newsctl: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor distinguishes flag-parse errors (exit 2) from fatal runtime
// errors (exit 1), per spec §6. Cobra/pflag don't expose a typed
// distinction, so this matches their well-known parse-error message
// prefixes.
func exitCodeFor(err error) int {
	msg := err.Error()
	parseErrorPrefixes := []string{"unknown flag", "unknown shorthand flag", "invalid argument", "flag needs an argument", "bad flag syntax"}
	for _, prefix := range parseErrorPrefixes {
		if strings.Contains(msg, prefix) {
			return 2
		}
	}
	return 1
}
