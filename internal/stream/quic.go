package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/vdemux/internal/certs"
)

// QUICProto is the ALPN protocol spoken by QUIC sources: the sending side
// opens one unidirectional stream and writes the media bytes to it.
const QUICProto = "vdemux"

// QUICConfig holds the settings for DialQUIC and QUICListener.
type QUICConfig struct {
	// TLS is the client config for DialQUIC or the server config for a
	// listener. A listener without one serves a fresh self-signed
	// certificate.
	TLS         *tls.Config
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

func (c QUICConfig) quic() *quic.Config {
	idle := c.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}
	return &quic.Config{
		MaxIdleTimeout: idle,
		Allow0RTT:      true,
	}
}

func (c QUICConfig) logger(component string) *slog.Logger {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", component)
}

type quicSource struct {
	conn quic.Connection
	str  quic.ReceiveStream
	ln   *quic.Listener
}

func (q *quicSource) Read(p []byte) (int, error) {
	return q.str.Read(p)
}

func (q *quicSource) Close() error {
	q.str.CancelRead(0)
	err := q.conn.CloseWithError(0, "closed")
	if q.ln != nil {
		q.ln.Close()
	}
	return err
}

// DialQUIC connects to addr and reads the first unidirectional stream the
// server opens.
func DialQUIC(ctx context.Context, addr string, cfg QUICConfig, opts ...Option) (*Stream, error) {
	log := cfg.logger("quic-caller")

	tlsConf := cfg.TLS
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{QUICProto}

	log.Info("dialing", "address", addr)
	conn, err := quic.DialAddr(ctx, addr, tlsConf, cfg.quic())
	if err != nil {
		return nil, fmt.Errorf("QUIC dial %s: %w", addr, err)
	}
	str, err := conn.AcceptUniStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("QUIC accept stream from %s: %w", addr, err)
	}
	log.Info("connected", "address", addr)

	return New(&quicSource{conn: conn, str: str},
		append([]Option{WithURL("quic://" + addr), WithRemoteAddr(conn.RemoteAddr().String()), WithLogger(cfg.Logger)}, opts...)...), nil
}

// QUICListener accepts publishers that push media over QUIC.
type QUICListener struct {
	log *slog.Logger
	ln  *quic.Listener
	cfg QUICConfig
}

// ListenQUIC starts listening on addr. Without a TLS config it serves a
// self-signed certificate that also covers the host of addr.
func ListenQUIC(addr string, cfg QUICConfig) (*QUICListener, error) {
	log := cfg.logger("quic-listener")

	tlsConf := cfg.TLS
	if tlsConf == nil {
		cert, err := certs.Generate(0, addr)
		if err != nil {
			return nil, fmt.Errorf("QUIC listener certificate: %w", err)
		}
		tlsConf = cert.ServerTLS(QUICProto)
		log.Info("using self-signed certificate", "fingerprint", cert.FingerprintBase64(), "names", cert.Names())
	} else {
		tlsConf = tlsConf.Clone()
		tlsConf.NextProtos = []string{QUICProto}
	}

	ln, err := quic.ListenAddr(addr, tlsConf, cfg.quic())
	if err != nil {
		return nil, fmt.Errorf("QUIC listen on %s: %w", addr, err)
	}
	log.Info("listening", "addr", ln.Addr().String())
	return &QUICListener{log: log, ln: ln, cfg: cfg}, nil
}

// Addr returns the bound address.
func (l *QUICListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits for a publisher and returns a stream reading its first
// unidirectional stream. Accepted streams stop working once the listener
// is closed.
func (l *QUICListener) Accept(ctx context.Context, opts ...Option) (*Stream, error) {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			return nil, fmt.Errorf("QUIC accept: %w", err)
		}
		str, err := conn.AcceptUniStream(ctx)
		if err != nil {
			l.log.Warn("publisher opened no stream", "remote", conn.RemoteAddr().String(), "error", err)
			conn.CloseWithError(0, "no stream")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		remote := conn.RemoteAddr().String()
		l.log.Info("publish", "remote", remote)
		return New(&quicSource{conn: conn, str: str},
			append([]Option{WithURL("quic://" + l.ln.Addr().String()), WithRemoteAddr(remote), WithLogger(l.cfg.Logger)}, opts...)...), nil
	}
}

// Close stops accepting and shuts down the underlying UDP socket.
func (l *QUICListener) Close() error {
	return l.ln.Close()
}

// AcceptOne accepts a single publisher and hands the listener to the
// returned stream, which closes it on Close.
func (l *QUICListener) AcceptOne(ctx context.Context, opts ...Option) (*Stream, error) {
	s, err := l.Accept(ctx, opts...)
	if err != nil {
		l.Close()
		return nil, err
	}
	s.src.(*quicSource).ln = l.ln
	return s, nil
}
