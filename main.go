package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/snd-ksa/docmigrate/cmd"
)

func main() {
	// SIGINT and SIGTERM cancel the run; in-flight records finish their
	// current step and the rest are reported as failed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
