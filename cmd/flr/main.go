package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/flr/internal/cmd/reader"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := reader.Execute(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
