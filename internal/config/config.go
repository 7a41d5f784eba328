package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sheerbytes/filehost/internal/transport"
	"github.com/sheerbytes/filehost/pkg/protocol"
)

const envPrefix = "FILEHOST_"

// Admission policies for connections that arrive while MaxSessions are active.
const (
	AdmissionReject = "reject"
	AdmissionQueue  = "queue"
)

// ErrUsage marks configuration errors the CLI reports with usage and exit status 2.
var ErrUsage = errors.New("usage error")

// ServerConfig holds configuration for the server binary.
type ServerConfig struct {
	Host           string
	Port           int
	Dir            string
	Transport      transport.Kind
	LogLevel       string
	LogFile        string        // "" disables the file mirror
	IdleTimeout    time.Duration // 0 disables
	MaxSessions    int
	Admission      string
	ConnectsPerMin int // per remote IP, 0 disables
	ConnectsBurst  int
	MaxFrameBytes  int64
	ShowQR         bool
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientConfig holds configuration for the client binary.
type ClientConfig struct {
	Host          string
	Port          int
	Dir           string
	Transport     transport.Kind
	LogLevel      string
	Timeout       time.Duration
	Mode          string // "" asks interactively or falls back to serial
	Workers       int    // 0 picks a default from the CPU count
	Retries       int
	MaxFrameBytes int64
	ListOnly      bool
	Files         []string
}

// Addr is the server address to dial.
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseServerConfig parses server configuration from flags and environment variables.
// Flags take precedence over environment variables.
func ParseServerConfig(args []string) (ServerConfig, error) {
	return parseServerConfigWithFlagSet(flag.NewFlagSet("filehostd", flag.ContinueOnError), args)
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Host:          "",
		Port:          9000,
		Dir:           "./host_dir",
		Transport:     transport.KindTCP,
		LogLevel:      "info",
		LogFile:       "server.log",
		IdleTimeout:   10 * time.Minute,
		MaxSessions:   64,
		Admission:     AdmissionQueue,
		ConnectsBurst: 10,
		MaxFrameBytes: protocol.DefaultMaxFrameSize,
	}

	// Read from environment first
	env := envReader{}
	env.str("HOST", &cfg.Host)
	env.integer("PORT", &cfg.Port)
	env.str("DIR", &cfg.Dir)
	transportName := string(cfg.Transport)
	env.str("TRANSPORT", &transportName)
	env.str("LOG_LEVEL", &cfg.LogLevel)
	env.str("LOG_FILE", &cfg.LogFile)
	env.duration("IDLE_TIMEOUT", &cfg.IdleTimeout)
	env.integer("MAX_SESSIONS", &cfg.MaxSessions)
	env.str("ADMISSION", &cfg.Admission)
	env.integer("CONNECTS_PER_MIN", &cfg.ConnectsPerMin)
	env.integer("CONNECTS_BURST", &cfg.ConnectsBurst)
	env.int64("MAX_FRAME_BYTES", &cfg.MaxFrameBytes)
	if err := env.err(); err != nil {
		return cfg, err
	}

	// Flags override environment
	fs.StringVar(&cfg.Host, "host", cfg.Host, "interface to listen on (empty for all)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory to host")
	fs.StringVar(&transportName, "transport", transportName, "transport (tcp, quic, ws)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append logs to this file (empty disables)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "close sessions idle this long (0 disables)")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "maximum concurrent sessions")
	fs.StringVar(&cfg.Admission, "admission", cfg.Admission, "policy when sessions are full (reject, queue)")
	fs.IntVar(&cfg.ConnectsPerMin, "connects-per-min", cfg.ConnectsPerMin, "new connections per minute per IP (0 disables)")
	fs.IntVar(&cfg.ConnectsBurst, "connects-burst", cfg.ConnectsBurst, "burst allowance for --connects-per-min")
	fs.Int64Var(&cfg.MaxFrameBytes, "max-frame-bytes", cfg.MaxFrameBytes, "largest frame payload to send or accept")
	fs.BoolVar(&cfg.ShowQR, "qr", false, "print the listen address as a QR code")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}

	kind, err := transport.ParseKind(transportName)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	cfg.Transport = kind
	return cfg, cfg.validate()
}

func (c ServerConfig) validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.Dir == "" {
		return fmt.Errorf("%w: --dir must not be empty", ErrUsage)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: --idle-timeout must not be negative", ErrUsage)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("%w: --max-sessions must be at least 1", ErrUsage)
	}
	if c.Admission != AdmissionReject && c.Admission != AdmissionQueue {
		return fmt.Errorf("%w: --admission must be reject or queue, got %q", ErrUsage, c.Admission)
	}
	if c.ConnectsPerMin < 0 || c.ConnectsBurst < 0 {
		return fmt.Errorf("%w: connection rate limits must not be negative", ErrUsage)
	}
	if c.ConnectsPerMin > 0 && c.ConnectsBurst < 1 {
		return fmt.Errorf("%w: --connects-burst must be at least 1 when rate limiting", ErrUsage)
	}
	return validateFrameBytes(c.MaxFrameBytes)
}

// ParseClientConfig parses client configuration from flags and environment variables.
// Flags take precedence over environment variables. Positional arguments are
// the files to download.
func ParseClientConfig(args []string) (ClientConfig, error) {
	return parseClientConfigWithFlagSet(flag.NewFlagSet("filehost", flag.ContinueOnError), args)
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	cfg := ClientConfig{
		Host:          "127.0.0.1",
		Port:          9000,
		Dir:           "./downloads",
		Transport:     transport.KindTCP,
		LogLevel:      "info",
		Timeout:       10 * time.Second,
		Retries:       3,
		MaxFrameBytes: protocol.DefaultMaxFrameSize,
	}

	// Read from environment first
	env := envReader{}
	env.str("HOST", &cfg.Host)
	env.integer("PORT", &cfg.Port)
	env.str("DOWNLOAD_DIR", &cfg.Dir)
	transportName := string(cfg.Transport)
	env.str("TRANSPORT", &transportName)
	env.str("LOG_LEVEL", &cfg.LogLevel)
	env.duration("TIMEOUT", &cfg.Timeout)
	env.str("MODE", &cfg.Mode)
	env.integer("WORKERS", &cfg.Workers)
	env.integer("RETRIES", &cfg.Retries)
	env.int64("MAX_FRAME_BYTES", &cfg.MaxFrameBytes)
	if err := env.err(); err != nil {
		return cfg, err
	}

	// Flags override environment
	fs.StringVar(&cfg.Host, "host", cfg.Host, "server host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "server port")
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory to save downloads in")
	fs.StringVar(&transportName, "transport", transportName, "transport (tcp, quic, ws)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "receive timeout per message")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "download mode (serial, parallel, 0, 1)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel downloads at once (0 for default)")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "retries after the first attempt")
	fs.Int64Var(&cfg.MaxFrameBytes, "max-frame-bytes", cfg.MaxFrameBytes, "largest frame payload to accept")
	fs.BoolVar(&cfg.ListOnly, "list", false, "print the server's file list and exit")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	cfg.Files = fs.Args()

	kind, err := transport.ParseKind(transportName)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	cfg.Transport = kind
	return cfg, cfg.validate()
}

func (c ClientConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: --host must not be empty", ErrUsage)
	}
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.Dir == "" {
		return fmt.Errorf("%w: --dir must not be empty", ErrUsage)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: --timeout must not be negative", ErrUsage)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: --workers must not be negative", ErrUsage)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: --retries must not be negative", ErrUsage)
	}
	return validateFrameBytes(c.MaxFrameBytes)
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: --port must be between 0 and 65535, got %d", ErrUsage, port)
	}
	return nil
}

func validateFrameBytes(n int64) error {
	if n < 1 {
		return fmt.Errorf("%w: --max-frame-bytes must be positive", ErrUsage)
	}
	return nil
}

// envReader reads FILEHOST_* variables and remembers the first malformed one.
type envReader struct {
	first error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = n
}

func (e *envReader) int64(key string, dst *int64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = d
}

func (e *envReader) fail(key, value string) {
	if e.first == nil {
		e.first = fmt.Errorf("%w: invalid %s%s=%q", ErrUsage, envPrefix, key, value)
	}
}

func (e *envReader) err() error {
	return e.first
}
