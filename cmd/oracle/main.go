package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/edgeandnode/qos-oracle/app/oracle"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	app := oracle.Initialize(ctx)

	app.Start(ctx)
}
