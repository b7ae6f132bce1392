package mpegts

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
)

// Demuxer reads transport packets from a reader and produces PAT, PMT and
// PES units. It is not safe for concurrent use.
type Demuxer struct {
	log           *slog.Logger
	reader        *bufio.Reader
	unit          []byte
	pktSize       int
	pool          *packetPool
	psi           programMap
	packetsParser PacketsParser
	skip          func(pid uint16) bool

	pos     int64 // offset of the next unit, relative to the last Reset
	base    int64
	pending []*DemuxerData
	eof     bool
	resyncs int
}

// DemuxerOption configures a Demuxer.
type DemuxerOption func(*Demuxer)

// NewDemuxer creates a demuxer reading from r.
func NewDemuxer(r io.Reader, opts ...DemuxerOption) *Demuxer {
	d := &Demuxer{
		log:     slog.Default(),
		reader:  bufio.NewReaderSize(r, 64*PacketSize),
		pktSize: PacketSize,
		psi:     make(programMap),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "mpegts")
	d.pool = newPacketPool(d.psi)
	d.unit = make([]byte, d.pktSize)
	return d
}

// DemuxerOptPacketSize sets the unit size: 188 (default), 192 or 204.
func DemuxerOptPacketSize(size int) DemuxerOption {
	return func(d *Demuxer) {
		if size == 192 || size == 204 {
			d.pktSize = size
		}
	}
}

// DemuxerOptPacketsParser installs a callback that sees every completed
// packet group before the standard parsers.
func DemuxerOptPacketsParser(p PacketsParser) DemuxerOption {
	return func(d *Demuxer) { d.packetsParser = p }
}

// DemuxerOptSkipPID drops packets of PIDs for which skip returns true
// before they are buffered. PSI PIDs are never skipped.
func DemuxerOptSkipPID(skip func(pid uint16) bool) DemuxerOption {
	return func(d *Demuxer) { d.skip = skip }
}

// DemuxerOptBasePos sets the input offset of the first byte read, used for
// Packet.Pos.
func DemuxerOptBasePos(pos int64) DemuxerOption {
	return func(d *Demuxer) { d.base = pos }
}

// DemuxerOptLogger sets the logger; nil keeps slog.Default().
func DemuxerOptLogger(log *slog.Logger) DemuxerOption {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// Reset discards buffered packets and partial units after the caller
// repositioned the input. pos is the new input offset, used for
// Packet.Pos. Known PMT PIDs are kept.
func (d *Demuxer) Reset(r io.Reader, pos int64) {
	d.reader.Reset(r)
	d.pool.reset()
	d.pending = nil
	d.eof = false
	d.base = pos
	d.pos = 0
}

// AddSectionPID makes the demuxer treat pid as carrying PSI-style sections,
// so its units complete as soon as a section does instead of at the next
// unit start. Sections with unknown table IDs reach the PacketsParser only.
func (d *Demuxer) AddSectionPID(pid uint16) { d.psi[pid] = true }

// Pos returns the input offset of the next packet to be read.
func (d *Demuxer) Pos() int64 { return d.base + d.pos }

// Resyncs returns how many times the demuxer lost packet alignment.
func (d *Demuxer) Resyncs() int { return d.resyncs }

// NextData returns the next parsed unit, or io.EOF once the input is
// exhausted and the buffered units were flushed.
func (d *Demuxer) NextData() (*DemuxerData, error) {
	for {
		if len(d.pending) > 0 {
			data := d.pending[0]
			d.pending = d.pending[1:]
			return data, nil
		}
		if d.eof {
			return nil, io.EOF
		}

		pkt, err := d.readPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				for _, packets := range d.pool.dump() {
					d.process(packets)
				}
				continue
			}
			return nil, err
		}
		if d.skip != nil && !d.psi.isPSI(pkt.Header.PID) && d.skip(pkt.Header.PID) {
			continue
		}
		if flushed := d.pool.add(pkt); flushed != nil {
			d.process(flushed)
		}
	}
}

// readPacket reads the next unit. When the stream is misaligned it skips
// bytes until a sync byte that is followed by another one a unit later.
func (d *Demuxer) readPacket() (*Packet, error) {
	off := syncOffset(d.pktSize)
	skipped := 0
	for {
		b, err := d.reader.Peek(off + d.pktSize + 1)
		if len(b) <= off {
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		aligned := b[off] == syncByte
		if aligned && skipped > 0 && len(b) > off+d.pktSize {
			aligned = b[off+d.pktSize] == syncByte
		}
		if aligned {
			break
		}
		if _, err := d.reader.Discard(1); err != nil {
			return nil, err
		}
		d.pos++
		skipped++
	}
	if skipped > 0 {
		d.resyncs++
		d.log.Debug("resynchronized", "skipped", skipped, "pos", d.Pos())
	}

	pos := d.Pos()
	if _, err := io.ReadFull(d.reader, d.unit); err != nil {
		return nil, err
	}
	d.pos += int64(d.pktSize)
	pkt, err := parsePacket(d.unit[off : off+PacketSize])
	if err != nil {
		return nil, err
	}
	pkt.Pos = pos
	return pkt, nil
}

func (d *Demuxer) process(packets []*Packet) {
	results, err := d.processPackets(packets)
	if err != nil {
		d.log.Debug("dropping unit", "pid", packets[0].Header.PID, "error", err)
		return
	}
	for _, r := range results {
		if r.PAT != nil {
			for _, p := range r.PAT.Programs {
				d.psi[p.ProgramMapID] = true
			}
		}
	}
	d.pending = append(d.pending, results...)
}

func (d *Demuxer) processPackets(packets []*Packet) ([]*DemuxerData, error) {
	first := packets[0]
	if d.packetsParser != nil {
		ds, skip, err := d.packetsParser(packets)
		if err != nil {
			return nil, err
		}
		if skip {
			return ds, nil
		}
	}

	payload := concatPayloads(packets)
	if len(payload) == 0 {
		return nil, nil
	}
	if d.psi.isPSI(first.Header.PID) {
		return parsePSI(payload, first)
	}
	if !isPESPayload(payload) {
		return nil, nil
	}
	pes, err := parsePES(payload)
	if err != nil {
		return nil, err
	}
	return []*DemuxerData{{FirstPacket: first, PES: pes}}, nil
}
