package serve

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sheerbytes/filehost/internal/transport"
)

func TestConnectHint(t *testing.T) {
	got := connectHint(transport.KindTCP, "192.168.1.20:9000")
	if got != "filehost --host 192.168.1.20 --port 9000" {
		t.Fatalf("unexpected hint %q", got)
	}
	got = connectHint(transport.KindQUIC, "10.0.0.1:9443")
	if !strings.HasSuffix(got, "--transport quic") {
		t.Fatalf("expected transport in hint, got %q", got)
	}
	got = connectHint(transport.KindTCP, "[::]:9000")
	if strings.Contains(got, "::") {
		t.Fatalf("wildcard address leaked into hint %q", got)
	}
}

func TestRunUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-admission", "drop"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "admission") {
		t.Fatalf("expected the bad flag in stderr, got %q", stderr.String())
	}
}

func TestRunBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-host", "127.0.0.1",
		"-port", strconv.Itoa(port),
		"-dir", t.TempDir(),
		"-log-file", "",
		"-log-level", "error",
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1 on bind failure, got %d", code)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "hosted")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := Run(ctx, []string{
		"-host", "127.0.0.1",
		"-port", "0",
		"-dir", dir,
		"-log-file", filepath.Join(t.TempDir(), "server.log"),
		"-log-level", "error",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "folder created") {
		t.Fatalf("expected directory bootstrap message, got %q", out)
	}
	if !strings.Contains(out, "[LISTENING]") {
		t.Fatalf("expected listening line, got %q", out)
	}
}
