package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/filehost/internal/cli/serve"
	"github.com/sheerbytes/filehost/internal/termio"
)

func main() {
	termio.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := serve.Run(ctx, os.Args[1:], termio.Stdout(), termio.Stderr())
	stop()
	termio.Flush()
	os.Exit(code)
}
