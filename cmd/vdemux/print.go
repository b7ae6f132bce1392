package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/packet"
	"github.com/zsiec/vdemux/internal/pipeline"
)

func printSummary(w io.Writer, d *demux.Demuxer, chapters bool) {
	fmt.Fprintf(w, "format: %s (%s)\n", d.Name(), d.Filetype)
	if l := d.TimeLength(); l >= 0 {
		fmt.Fprintf(w, "duration: %s\n", seconds(l))
	}
	if st := d.StartTime(); st != 0 {
		fmt.Fprintf(w, "start: %s\n", seconds(st))
	}
	fmt.Fprintf(w, "seekable: %v\n", d.Seekable)

	for _, t := range d.Tracks() {
		fmt.Fprintf(w, "track %d: %s %s id=%d%s\n", t.Index(), t.Type, t.Codec, t.DemuxerID, trackDetail(t))
	}

	md := d.Metadata()
	for i := range md.Len() {
		k, v := md.At(i)
		fmt.Fprintf(w, "tag %s: %s\n", k, v)
	}

	if !chapters {
		return
	}
	for i, c := range d.Chapters() {
		end := "?"
		if c.End > 0 {
			end = c.End.String()
		}
		fmt.Fprintf(w, "chapter %d: %q %s - %s\n", i, c.Name, c.Start, end)
	}
}

func trackDetail(t *demux.Track) string {
	var s string
	switch {
	case t.Video != nil && t.Video.Width > 0:
		s = fmt.Sprintf(" %dx%d", t.Video.Width, t.Video.Height)
		if t.Video.FPS > 0 {
			s += fmt.Sprintf(" %.3ffps", t.Video.FPS)
		}
	case t.Audio != nil && t.Audio.SampleRate > 0:
		s = fmt.Sprintf(" %dHz %dch", t.Audio.SampleRate, t.Audio.Channels)
	}
	if t.Lang != "" {
		s += " lang=" + t.Lang
	}
	if t.Title != "" {
		s += fmt.Sprintf(" %q", t.Title)
	}
	return s
}

func dumpSink(w io.Writer) pipeline.SinkFunc {
	return func(_ context.Context, t *demux.Track, p *packet.Packet) error {
		_, err := fmt.Fprintf(w, "packet track=%d %s pts=%s dur=%s pos=%d size=%d key=%v\n",
			t.Index(), t.Type, pts(p.PTS), pts(p.Duration), p.Pos, p.Len(), p.Keyframe)
		return err
	}
}

func printStats(w io.Writer, st pipeline.Stats) {
	for _, typ := range []demux.TrackType{demux.Video, demux.Audio, demux.Subtitle} {
		ts := st.Tracks[typ]
		if ts.Packets == 0 {
			continue
		}
		fmt.Fprintf(w, "%s: %d packets, %d bytes, %d keyframes, last pts %s\n",
			typ, ts.Packets, ts.Bytes, ts.Keyframes, pts(ts.LastPTS))
	}
	fmt.Fprintf(w, "elapsed: %s\n", st.Elapsed.Round(time.Millisecond))
}

func pts(v float64) string {
	if v == packet.NoPTS || v < 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second)).Round(time.Millisecond)
}
