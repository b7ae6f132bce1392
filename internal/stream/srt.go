package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// SRTReadSize is the read size for SRT sockets: ten payloads of seven
// 188-byte transport packets.
const SRTReadSize = 1316 * 10

// SRTConfig holds the SRT connection settings used by DialSRT and ListenSRT.
type SRTConfig struct {
	Latency     time.Duration
	DialTimeout time.Duration
	// StreamID is sent by callers and matched by listeners. Listeners
	// accept any publisher when it is empty.
	StreamID string
	Logger   *slog.Logger
}

// DefaultSRTLatency is the receive latency used when none is configured.
const DefaultSRTLatency = 120 * time.Millisecond

func (c SRTConfig) latency() time.Duration {
	if c.Latency <= 0 {
		return DefaultSRTLatency
	}
	return c.Latency
}

// setNanos stores d as nanoseconds in a duration-like field.
func setNanos[T ~int64](dst *T, d time.Duration) {
	*dst = T(d)
}

type srtSource struct {
	conn *srtgo.Conn
	buf  []byte
	// closeListener is set for listener-mode sources, which own the
	// listener they were accepted on.
	closeListener func()
}

// Read returns one SRT message at a time. Messages larger than p are kept
// and handed out over several reads.
func (s *srtSource) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		if len(p) >= SRTReadSize {
			return s.conn.Read(p)
		}
		buf := make([]byte, SRTReadSize)
		n, err := s.conn.Read(buf)
		if err != nil {
			return 0, err
		}
		s.buf = buf[:n]
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *srtSource) Close() error {
	err := s.conn.Close()
	if s.closeListener != nil {
		s.closeListener()
	}
	return err
}

// DialSRT connects to a remote SRT listener in caller mode. The dial is
// bounded by cfg.DialTimeout and ctx.
func DialSRT(ctx context.Context, addr string, cfg SRTConfig, opts ...Option) (*Stream, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller")

	sc := srtgo.DefaultConfig()
	setNanos(&sc.Latency, cfg.latency())
	sc.StreamID = cfg.StreamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, sc)
		ch <- dialResult{conn, err}
	}()

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	log.Info("dialing", "address", addr, "stream_id", cfg.StreamID)

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial %s: %w", addr, res.err)
		}
		log.Info("connected", "address", addr)
		return New(&srtSource{conn: res.conn},
			append([]Option{WithURL("srt://" + addr), WithRemoteAddr(addr), WithLogger(cfg.Logger)}, opts...)...), nil
	case <-timer.C:
		// Drain the dial result in the background and close any leaked connection.
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("SRT dial %s timed out after %s", addr, timeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ListenSRT waits for one publisher on addr and returns its stream. With a
// non-empty cfg.StreamID, publishers announcing another key are rejected.
func ListenSRT(ctx context.Context, addr string, cfg SRTConfig, opts ...Option) (*Stream, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-listener")

	sc := srtgo.DefaultConfig()
	setNanos(&sc.Latency, cfg.latency())

	l, err := srtgo.Listen(addr, sc)
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", addr, err)
	}
	log.Info("listening", "addr", addr)

	want := StreamKey(cfg.StreamID)
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		if cfg.StreamID != "" && StreamKey(req.StreamID) != want {
			return srtgo.RejPeer
		}
		return 0
	})

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.Close()
				return nil, ctx.Err()
			}
			log.Warn("accept error", "error", err)
			continue
		}
		key := StreamKey(conn.StreamID())
		remote := conn.RemoteAddr().String()
		log.Info("publish", "stream_key", key, "remote", remote)
		src := &srtSource{conn: conn, closeListener: func() { l.Close() }}
		return New(src,
			append([]Option{WithURL("srt://" + addr + "/" + key), WithRemoteAddr(remote), WithLogger(cfg.Logger)}, opts...)...), nil
	}
}

// StreamKey normalizes an SRT stream ID: a leading slash and a "live/"
// prefix are dropped, and an empty key becomes "default".
func StreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
