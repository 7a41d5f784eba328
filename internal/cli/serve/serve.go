package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/sheerbytes/filehost/internal/config"
	"github.com/sheerbytes/filehost/internal/hostdir"
	"github.com/sheerbytes/filehost/internal/logging"
	"github.com/sheerbytes/filehost/internal/server"
	"github.com/sheerbytes/filehost/internal/transport"
)

const shutdownGrace = 5 * time.Second

// Run starts the file server and blocks until ctx is cancelled. It returns the
// process exit status: 0 on clean shutdown, 1 on startup failure, 2 on usage
// errors.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.ParseServerConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "filehostd: %v\nrun 'filehostd -h' for usage\n", err)
		return 2
	}

	logger, closer, err := logging.NewWithFile("filehostd", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "filehostd: %v\n", err)
		return 1
	}
	defer closer.Close()

	dir, created, err := hostdir.Open(cfg.Dir)
	if err != nil {
		logger.Error("cannot open host directory", "dir", cfg.Dir, "error", err)
		return 1
	}
	if created {
		logger.Info("created host directory", "dir", cfg.Dir)
		fmt.Fprintf(stdout, "%s folder created. Put files here to host them.\n", cfg.Dir)
	}

	srv, err := server.Listen(ctx, cfg.Transport, cfg.Addr(), dir, server.Options{
		IdleTimeout:    cfg.IdleTimeout,
		MaxSessions:    cfg.MaxSessions,
		Admission:      server.Policy(cfg.Admission),
		ConnectsPerMin: cfg.ConnectsPerMin,
		ConnectsBurst:  cfg.ConnectsBurst,
		MaxFrameBytes:  int(cfg.MaxFrameBytes),
	}, logger)
	if err != nil {
		logger.Error("bind failed", "addr", cfg.Addr(), "error", err)
		return 1
	}

	hint := connectHint(cfg.Transport, srv.Addr())
	fmt.Fprintf(stdout, "[LISTENING] serving %s on %s (%s)\n", dir.Root(), srv.Addr(), cfg.Transport)
	fmt.Fprintf(stdout, "connect with: %s\n", hint)
	if cfg.ShowQR {
		printQR(stdout, hint)
	}

	if err := srv.Serve(ctx); err != nil {
		logger.Error("serve failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	logger.Info("server stopped")
	return 0
}

// connectHint is the client command line for reaching this server. A wildcard
// listen address is replaced with a routable local address when one exists.
func connectHint(kind transport.Kind, addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "filehost"
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = localIP()
	}
	hint := "filehost --host " + host + " --port " + port
	if kind != transport.KindTCP {
		hint += " --transport " + string(kind)
	}
	return hint
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "127.0.0.1"
}

func printQR(w io.Writer, text string) {
	qrterminal.GenerateWithConfig(text, qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         w,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteChar:      qrterminal.WHITE_WHITE,
		QuietZone:      1,
	})
}
