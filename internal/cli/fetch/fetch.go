package fetch

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/sheerbytes/filehost/internal/client"
	"github.com/sheerbytes/filehost/internal/config"
	"github.com/sheerbytes/filehost/internal/logging"
	"github.com/sheerbytes/filehost/internal/progress"
	"github.com/sheerbytes/filehost/internal/transport"
)

// Run is the client command. interactive enables the file and mode prompts
// when no files are named on the command line. It returns the process exit
// status: 0 when everything downloaded, 1 on connection or download failure,
// 2 on usage errors.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, interactive bool) int {
	cfg, err := config.ParseClientConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "filehost: %v\nrun 'filehost -h' for usage\n", err)
		return 2
	}

	mode := client.Serial
	modeSet := cfg.Mode != ""
	if modeSet {
		if mode, err = client.ParseMode(cfg.Mode); err != nil {
			fmt.Fprintf(stderr, "filehost: %v\n", err)
			return 2
		}
	}
	if len(cfg.Files) == 0 && !cfg.ListOnly && !interactive {
		fmt.Fprintln(stderr, "filehost: no files given; name files to download or use --list")
		return 2
	}

	logger := logging.New("filehost", cfg.LogLevel)

	if _, err := os.Stat(cfg.Dir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			fmt.Fprintf(stderr, "filehost: create %s: %v\n", cfg.Dir, err)
			return 1
		}
		fmt.Fprintf(stdout, "%s folder created. Files will be downloaded here.\n", cfg.Dir)
	}

	dialer, err := transport.NewDialer(cfg.Transport, cfg.Addr(), cfg.Timeout)
	if err != nil {
		fmt.Fprintf(stderr, "filehost: %v\n", err)
		return 2
	}
	c := client.New(dialer, client.Options{
		Dir:           cfg.Dir,
		Timeout:       cfg.Timeout,
		MaxFrameBytes: int(cfg.MaxFrameBytes),
		Workers:       cfg.Workers,
		Retries:       cfg.Retries,
		OnRetry: func(attempt, left int, failed []client.Failure) {
			fmt.Fprintf(stdout, "%v failed to download, tries left %d\n", failureNames(failed), left+1)
		},
	}, logger)

	conn, err := c.Connect(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "filehost: %v\n", err)
		return 1
	}
	defer conn.Close()
	fmt.Fprintf(stdout, "[CONNECTED] connected to %s\n", cfg.Addr())

	names := cfg.Files
	if cfg.ListOnly || len(names) == 0 {
		listing, err := conn.List(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "filehost: list files: %v\n", err)
			return 1
		}
		if cfg.ListOnly {
			printListing(stdout, listing)
			return 0
		}
		if len(listing) == 0 {
			fmt.Fprintln(stdout, "The server has no files to offer.")
			return 0
		}

		in := bufio.NewReader(stdin)
		if names, err = selectFiles(in, stdout, listing); err != nil {
			fmt.Fprintf(stderr, "filehost: %v\n", err)
			return 2
		}
		if len(names) == 0 {
			fmt.Fprintln(stdout, "Nothing selected.")
			return 0
		}
		if !modeSet {
			if mode, err = promptMode(in, stdout); err != nil {
				fmt.Fprintf(stderr, "filehost: %v\n", err)
				return 2
			}
		}
	}

	fmt.Fprintf(stdout, "Downloading %v (%s)\n", names, mode)
	report := c.DownloadWithRetry(ctx, names, mode, conn)

	for _, f := range report.Failed {
		fmt.Fprintf(stdout, "  %s\n", f)
	}
	if len(report.Failed) > 0 {
		fmt.Fprintf(stdout, "%v could not be downloaded\n", failureNames(report.Failed))
	}
	fmt.Fprintf(stdout, "Downloaded %d of %d files, %s in %s (%d attempts)\n",
		len(report.Downloaded), len(names),
		progress.FormatBytes(report.Bytes),
		report.Elapsed.Round(time.Millisecond), report.Attempts)
	if len(report.Failed) > 0 {
		return 1
	}
	return 0
}

func failureNames(failed []client.Failure) string {
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}
