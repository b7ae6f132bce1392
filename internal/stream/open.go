package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// OpenOptions configure Open.
type OpenOptions struct {
	// CacheSize enables the read-ahead cache for non-seekable sources
	// when positive.
	CacheSize int
	// CacheReadahead bounds how far the cache reads ahead.
	CacheReadahead int
	SRTLatency     time.Duration
	DialTimeout    time.Duration
	TLS            *tls.Config
	Logger         *slog.Logger
}

// Open opens a stream by URL. Supported forms:
//
//	/path/to/file, file:///path
//	srt://host:port?streamid=key[&mode=listener]
//	quic://host:port[?mode=listener]
//
// Any URL may carry demuxer=name to set the format hint. SRT sources carry
// MPEG-TS and hint "ts" by default.
func Open(ctx context.Context, rawURL string, o OpenOptions) (*Stream, error) {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}

	if !strings.Contains(rawURL, "://") {
		return OpenFile(rawURL, WithLogger(o.Logger))
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	listener := q.Get("mode") == "listener"
	hint := q.Get("demuxer")

	var s *Stream
	switch u.Scheme {
	case "file":
		s, err = OpenFile(u.Path, WithLogger(o.Logger))
	case "srt":
		if hint == "" {
			hint = "ts"
		}
		cfg := SRTConfig{
			Latency:     o.SRTLatency,
			DialTimeout: o.DialTimeout,
			StreamID:    q.Get("streamid"),
			Logger:      o.Logger,
		}
		if listener {
			s, err = ListenSRT(ctx, u.Host, cfg)
		} else {
			s, err = DialSRT(ctx, u.Host, cfg)
		}
	case "quic":
		cfg := QUICConfig{TLS: o.TLS, Logger: o.Logger}
		if listener {
			var l *QUICListener
			if l, err = ListenQUIC(u.Host, cfg); err == nil {
				s, err = l.AcceptOne(ctx)
			}
		} else {
			dctx := ctx
			if o.DialTimeout > 0 {
				var cancel context.CancelFunc
				dctx, cancel = context.WithTimeout(ctx, o.DialTimeout)
				defer cancel()
			}
			s, err = DialQUIC(dctx, u.Host, cfg)
		}
	default:
		return nil, fmt.Errorf("open %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	if hint != "" {
		s.Demuxer = hint
	}

	if s.Seekable() || o.CacheSize <= 0 {
		return s, nil
	}
	log.Info("enabling stream cache", "url", s.URL, "size", o.CacheSize)
	c := NewCache(s, o.CacheSize, o.CacheReadahead, o.Logger)
	return New(c,
		WithURL(s.URL),
		WithDemuxer(s.Demuxer),
		WithUncached(s),
		WithRemoteAddr(s.remote),
		WithLogger(o.Logger),
	), nil
}
