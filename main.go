// edgetun exposes local services through a remote tunneling edge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"edgetun/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "edgetun: %v\n", err)
		os.Exit(1)
	}
}
