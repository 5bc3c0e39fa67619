// Command erpgen migrates a SQLite ERP database to a declarative schema and
// generates its Go access layer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/erpgen/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return cli.ExitSuccess
	}
	fmt.Fprintf(os.Stderr, "erpgen: %v\n", err)
	return cli.GetExitCode(err)
}
