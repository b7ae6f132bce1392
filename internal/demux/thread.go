package demux

import (
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/zsiec/vdemux/internal/stream"
)

// threadWrapper runs an inner demuxer on its own goroutine and is the plugin
// behind the facade demuxer NewThreaded returns.
//
// Both goroutines hold mu while they work. The consumer gets exclusive use
// of the inner demuxer by pausing the reader: it sets requestPause and waits
// until the reader reports paused from inside its wait loop. The reader
// drops mu only around a fill and around the snapshot refresh, and never
// touches the inner demuxer while a pause is pending.
type threadWrapper struct {
	log    *slog.Logger
	limits Limits
	inner  *Demuxer
	facade *Demuxer
	done   chan struct{}

	mu           sync.Mutex
	wakeup       *sync.Cond
	requestKill  bool
	requestPause bool
	paused       bool
	readPackets  bool
	numTracks    int
	startTime    float64
	timeLength   float64
	cache        stream.CacheCtrls
}

// NewThreaded starts reading inner ahead on a separate goroutine and returns
// a facade to use instead of it. The facade shares the inner tracks' queues.
// Reading starts with the first FillBuffer on the facade (the first
// ReadPacket, normally) and pauses while the facade flushes.
//
// Closing the facade stops the goroutine and closes inner. The stream stays
// open.
func NewThreaded(inner *Demuxer) *Demuxer {
	w := &threadWrapper{
		log:    inner.log.With("threaded", true),
		limits: inner.limits,
		inner:  inner,
		done:   make(chan struct{}),
	}
	w.wakeup = sync.NewCond(&w.mu)

	sh := &shim{w: w, log: w.log}
	facade := &Demuxer{
		Filetype:     inner.Filetype,
		Seekable:     inner.Seekable,
		AccurateSeek: inner.AccurateSeek,
		log:          inner.log,
		stats:        inner.stats,
		limits:       inner.limits,
		format:       threadedFormat{inner.format},
		plugin:       w,
		stream:       stream.New(sh, stream.WithURL(inner.stream.URL), stream.WithLogger(w.log)),
		chapters:     cloneChapters(inner.chapters),
		attachments:  inner.attachments,
		metadata:     inner.metadata.Clone(),
		autoselect:   inner.autoselect,
		filepos:      -1,
		streamPTS:    inner.streamPTS,
	}
	w.facade = facade

	w.mu.Lock()
	w.addTrackHeaders()
	w.mu.Unlock()
	w.updateInfos()

	go w.run()
	return facade
}

type threadedFormat struct {
	Format
}

func (f threadedFormat) Desc() string {
	return f.Format.Desc() + " (threaded)"
}

func cloneChapters(in []Chapter) []Chapter {
	out := slices.Clone(in)
	for i := range out {
		out[i].Metadata = out[i].Metadata.Clone()
	}
	return out
}

// pause blocks until the reader is parked. Called with mu held.
func (w *threadWrapper) pause() {
	w.requestPause = true
	w.wakeup.Broadcast()
	for !w.paused {
		w.wakeup.Wait()
	}
}

// resume lets the reader go on once the caller unlocks mu.
func (w *threadWrapper) resume() {
	w.requestPause = false
	w.wakeup.Broadcast()
}

// addTrackHeaders mirrors inner tracks the facade does not know yet. Called
// with the reader paused or not yet started.
func (w *threadWrapper) addTrackHeaders() {
	for i := len(w.facade.tracks); i < len(w.inner.tracks); i++ {
		w.facade.tracks = append(w.facade.tracks, w.inner.tracks[i].view(w.facade))
	}
	w.numTracks = len(w.inner.tracks)
}

// updateInfos refreshes the snapshot the facade answers from. Called by
// the reader without mu, or before it starts.
func (w *threadWrapper) updateInfos() {
	start := w.inner.StartTime()
	length := w.inner.TimeLength()
	var cache stream.CacheCtrls
	cache.Update(w.inner.stream)

	w.mu.Lock()
	w.startTime = start
	w.timeLength = length
	w.cache = cache
	w.mu.Unlock()
}

// readPacket does one fill unless reading is disabled or every selected
// audio and video track has enough queued. It reports whether it filled.
// Called with mu held; mu is released during the fill.
func (w *threadWrapper) readPacket() bool {
	if !w.readPackets {
		return false
	}
	enough := true
	for _, t := range w.inner.tracks {
		if !t.selected || (t.Type != Video && t.Type != Audio) {
			continue
		}
		if _, count := t.queue.Size(); count < w.limits.Readahead {
			enough = false
			break
		}
	}
	if enough {
		return false
	}

	w.mu.Unlock()
	ok := w.inner.FillBuffer()
	w.mu.Lock()

	w.numTracks = len(w.inner.tracks)
	w.wakeup.Broadcast()
	return ok
}

// idle waits for a wakeup or IdleWait, whichever comes first. Called with
// mu held.
func (w *threadWrapper) idle() {
	t := time.AfterFunc(w.limits.IdleWait, func() {
		w.mu.Lock()
		w.wakeup.Broadcast()
		w.mu.Unlock()
	})
	w.wakeup.Wait()
	t.Stop()
}

func (w *threadWrapper) run() {
	defer close(w.done)
	w.log.Debug("demux thread started")

	lastUpdate := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.requestKill {
		for w.requestPause && !w.requestKill {
			w.paused = true
			w.wakeup.Broadcast()
			w.wakeup.Wait()
		}
		w.paused = false
		if w.requestKill {
			break
		}

		w.mu.Unlock()
		if time.Since(lastUpdate) >= w.limits.UpdateInterval {
			w.updateInfos()
			lastUpdate = time.Now()
		}
		w.mu.Lock()

		if w.requestPause || w.requestKill {
			continue
		}
		if !w.readPacket() && !w.requestPause && !w.requestKill {
			w.idle()
		}
	}
	w.wakeup.Broadcast()
	w.log.Debug("demux thread stopped")
}

// FillBuffer reads directly on the caller's goroutine with the reader
// paused, then enables read-ahead.
func (w *threadWrapper) FillBuffer(d *Demuxer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pause()
	ok := w.inner.FillBuffer()
	w.addTrackHeaders()
	w.readPackets = true
	w.resume()
	return ok
}

func (w *threadWrapper) Seek(d *Demuxer, rel float64, flags SeekFlags) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pause()
	if err := w.inner.Seek(rel, flags); err != nil {
		w.log.Warn("seek failed", "rel", rel, "error", err)
	}
	w.resume()
}

func (w *threadWrapper) Control(d *Demuxer, cmd Ctrl, arg any) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch cmd {
	case CtrlGetTimeLength:
		return w.timeLength, nil
	case CtrlGetStartTime:
		return w.startTime, nil
	}

	w.pause()
	defer w.resume()
	switch cmd {
	case CtrlUpdateInfo:
		if w.numTracks != len(w.facade.tracks) {
			w.addTrackHeaders()
		}
		w.inner.InfoUpdate()
		w.facade.metadata = w.inner.metadata.Clone()
		w.facade.chapters = cloneChapters(w.inner.chapters)
		w.facade.sortChapters()
		return nil, nil
	case CtrlFlush:
		w.readPackets = false
		w.inner.Flush()
		return nil, nil
	case CtrlSwitchedTracks:
		w.addTrackHeaders()
		for i, t := range w.facade.tracks {
			w.inner.SelectTrack(w.inner.tracks[i], t.selected)
		}
		w.inner.autoselect = w.facade.autoselect
		return nil, nil
	}
	return w.inner.Control(cmd, arg)
}

func (w *threadWrapper) Close(d *Demuxer) {
	w.mu.Lock()
	w.requestKill = true
	w.wakeup.Broadcast()
	w.mu.Unlock()
	<-w.done

	d.stream.Close()
	w.inner.Close()
}

// shim is the source of the facade's stream. Reading or seeking it is a
// bug: consumers go through the demuxer. Controls are answered from the
// wrapper's snapshot, or forwarded to the inner stream with the reader
// paused.
type shim struct {
	w   *threadWrapper
	log *slog.Logger
}

func (s *shim) Read([]byte) (int, error) {
	s.log.Error("read from demuxer wrapper stream")
	return 0, stream.ErrWrapperIO
}

func (s *shim) Seek(int64, int) (int64, error) {
	s.log.Error("seek in demuxer wrapper stream")
	return 0, stream.ErrWrapperIO
}

func (s *shim) Seekable() bool { return false }

func (s *shim) Control(cmd stream.Command, arg any) (any, error) {
	w := s.w
	if w == nil {
		return nil, stream.ErrClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, err := w.cache.Get(cmd); stream.Covered(err) {
		return v, err
	}
	w.pause()
	defer w.resume()
	return w.inner.stream.Control(cmd, arg)
}

// Close detaches the shim from the wrapper.
func (s *shim) Close() error {
	s.w = nil
	return nil
}

var (
	_ io.ReadSeeker     = (*shim)(nil)
	_ stream.Controller = (*shim)(nil)
	_ Filler            = (*threadWrapper)(nil)
	_ Seeker            = (*threadWrapper)(nil)
	_ Controller        = (*threadWrapper)(nil)
	_ Closer            = (*threadWrapper)(nil)
)
