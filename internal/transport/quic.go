package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPNProtocol identifies this protocol during the QUIC handshake.
	ALPNProtocol = "filehost-v1"

	quicStreamWindow = 16 * 1024 * 1024
	quicConnWindow   = 64 * 1024 * 1024
	streamAcceptWait = 10 * time.Second
	closeGrace       = time.Second
)

// serverTLSConfig returns a TLS config with a fresh self-signed certificate.
// QUIC requires TLS; peers are not authenticated.
func serverTLSConfig() (*tls.Config, error) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
	}, nil
}

func clientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPNProtocol},
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:                10 * time.Second,
		MaxIdleTimeout:                 30 * time.Second,
		MaxIncomingStreams:             1,
		InitialStreamReceiveWindow:     quicStreamWindow,
		MaxStreamReceiveWindow:         quicStreamWindow,
		InitialConnectionReceiveWindow: quicConnWindow,
		MaxConnectionReceiveWindow:     quicConnWindow,
	}
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"filehost"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

// quicListener accepts QUIC connections and hands each one out once its single
// bidirectional stream has been opened by the client.
type quicListener struct {
	ln     *quic.Listener
	q      *queue
	logger *slog.Logger
	wg     sync.WaitGroup
}

func listenQUIC(addr string, logger *slog.Logger) (Listener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	l := &quicListener{ln: ln, q: newQueue(), logger: logger}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

func (l *quicListener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept(context.Background())
		if err != nil {
			if !errors.Is(err, quic.ErrServerClosed) {
				l.logger.Debug("quic accept ended", "error", err)
			}
			return
		}
		go l.awaitStream(conn)
	}
}

func (l *quicListener) awaitStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), streamAcceptWait)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Debug("quic connection opened no stream", "remote", conn.RemoteAddr(), "error", err)
		_ = conn.CloseWithError(0, "no stream")
		return
	}
	l.q.push(&quicConn{conn: conn, stream: stream})
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	return l.q.accept(ctx)
}

func (l *quicListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *quicListener) Close() error {
	if !l.q.close() {
		return nil
	}
	err := l.ln.Close()
	l.wg.Wait()
	l.q.drain()
	return err
}

type quicDialer struct {
	addr    string
	timeout time.Duration
}

func (d *quicDialer) Dial(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, err := quic.DialAddr(ctx, d.addr, clientTLSConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return &quicConn{conn: conn, stream: stream}, nil
}

// quicConn is one QUIC connection carrying exactly one stream.
type quicConn struct {
	conn      *quic.Conn
	stream    *quic.Stream
	closeOnce sync.Once
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *quicConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *quicConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}

func (c *quicConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close finishes the stream, gives the peer a moment to read what is in flight
// and finish its side, then closes the connection.
func (c *quicConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		_ = c.stream.SetReadDeadline(time.Now().Add(closeGrace))
		_, _ = io.Copy(io.Discard, c.stream)
		err = c.conn.CloseWithError(0, "")
	})
	return err
}
