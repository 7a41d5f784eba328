package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/filehost/internal/cli/fetch"
	"github.com/sheerbytes/filehost/internal/termio"
)

func main() {
	termio.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := fetch.Run(ctx, os.Args[1:], os.Stdin, termio.Stdout(), termio.Stderr(), termio.Interactive())
	stop()
	termio.Flush()
	os.Exit(code)
}
