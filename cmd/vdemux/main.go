// Command vdemux opens a media URL, prints what the demuxer finds and
// reads every selected track through to the end.
//
//	vdemux [flags] <file | file:// | srt:// | quic:// URL>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/vdemux/internal/config"
	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/format"
	"github.com/zsiec/vdemux/internal/metrics"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/pipeline"
	"github.com/zsiec/vdemux/internal/stream"
)

var version = "dev"

type options struct {
	url      string
	dump     bool
	chapters bool
	seek     float64
	max      int64
}

func main() {
	fs := flag.NewFlagSet("vdemux", flag.ExitOnError)
	cfgPath := fs.String("config", envOr("VDEMUX_CONFIG", config.Path()), "YAML configuration file")
	formatName := fs.String("format", "", "force a format by name, \"+name\" to skip its probe")
	threaded := fs.Bool("threaded", true, "read ahead on a separate goroutine")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on this address")
	var o options
	fs.BoolVar(&o.dump, "dump", false, "print every packet")
	fs.BoolVar(&o.chapters, "chapters", false, "print the chapter list")
	fs.Float64Var(&o.seek, "seek", 0, "seek to this many seconds before reading")
	fs.Int64Var(&o.max, "n", 0, "stop after this many packets")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: vdemux [flags] <url>\n\nformats: %v\n\n", format.Names())
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	o.url = fs.Arg(0)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Demux.Format = *formatName
		case "threaded":
			cfg.Demux.Threaded = *threaded
		case "metrics":
			cfg.Metrics.Addr = *metricsAddr
		}
	})

	level, _ := cfg.Level()
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("vdemux starting", "version", version, "url", o.url, "config", *cfgPath)
	if err := run(ctx, cfg, o, os.Stdout); err != nil {
		slog.Error("vdemux failed", "error", err)
		os.Exit(1)
	}
}

// run opens o.url, prints the summary and drains the demuxer. A metrics
// endpoint runs alongside when configured.
func run(ctx context.Context, cfg *config.Config, o options, w io.Writer) error {
	log := slog.Default()

	s, err := stream.Open(ctx, o.url, cfg.OpenOptions(log))
	if err != nil {
		return fmt.Errorf("open %s: %w", o.url, err)
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	opts := []demux.Option{
		demux.WithLogger(log),
		demux.WithLimits(cfg.Limits()),
		demux.WithStats(rec),
		demux.WithAutoselect(),
	}
	if cfg.Demux.Format != "" {
		opts = append(opts, demux.WithFormat(cfg.Demux.Format))
	}
	d, err := demux.Open(s, format.Builtin(), opts...)
	if err != nil {
		return fmt.Errorf("demux %s: %w", o.url, err)
	}
	if cfg.Demux.Threaded {
		d = demux.NewThreaded(d)
	}
	defer d.Close()

	printSummary(w, d, o.chapters)

	if o.seek != 0 {
		if err := d.Seek(o.seek, demux.SeekAbsolute); err != nil {
			return fmt.Errorf("seek to %.3fs: %w", o.seek, err)
		}
	}

	sink := pipeline.SinkFunc(func(context.Context, *demux.Track, *packet.Packet) error { return nil })
	if o.dump {
		sink = dumpSink(w)
	}
	p := pipeline.New(d, sink, pipeline.WithLogger(log), pipeline.WithMaxPackets(o.max))

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return p.Run(runCtx)
	})

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, reg, log)
		g.Go(srv.Start)
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printStats(w, p.Stats())
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
