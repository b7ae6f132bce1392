package mpegts

import (
	"maps"
	"slices"
)

// programMap records which PIDs carry PMT sections. It outlives Reset so
// a repositioned demuxer keeps recognizing PSI.
type programMap map[uint16]bool

func (pm programMap) isPSI(pid uint16) bool {
	return pid == pidPAT || pm[pid]
}

// packetAccumulator buffers the packets of one PID until the unit they
// carry is complete.
type packetAccumulator struct {
	pid     uint16
	packets []*Packet
	psi     programMap
}

func (pa *packetAccumulator) add(p *Packet) []*Packet {
	if p.Header.TransportErrorIndicator {
		pa.packets = nil
		return nil
	}
	if !p.Header.HasPayload {
		return nil
	}

	if n := len(pa.packets); n > 0 && !p.Header.DiscontinuityIndicator {
		prev := pa.packets[n-1].Header.ContinuityCounter
		if p.Header.ContinuityCounter != (prev+1)&0x0F {
			if p.Header.ContinuityCounter == prev {
				return nil // duplicate
			}
			pa.packets = nil // unsignaled discontinuity
		}
	}

	var flushed []*Packet
	if p.Header.PayloadUnitStartIndicator && len(pa.packets) > 0 {
		flushed = pa.packets
		pa.packets = nil
	}
	// continuation packets of a unit whose start was never seen are useless
	if len(pa.packets) == 0 && !p.Header.PayloadUnitStartIndicator {
		return flushed
	}
	pa.packets = append(pa.packets, p)

	if flushed == nil && pa.psi.isPSI(pa.pid) && psiComplete(pa.packets) {
		flushed = pa.packets
		pa.packets = nil
	}
	return flushed
}

func (pa *packetAccumulator) flush() []*Packet {
	flushed := pa.packets
	pa.packets = nil
	return flushed
}

func psiComplete(packets []*Packet) bool {
	_, complete := sections(concatPayloads(packets))
	return complete
}

func concatPayloads(packets []*Packet) []byte {
	if len(packets) == 1 {
		return packets[0].Payload
	}
	n := 0
	for _, p := range packets {
		n += len(p.Payload)
	}
	out := make([]byte, 0, n)
	for _, p := range packets {
		out = append(out, p.Payload...)
	}
	return out
}

// packetPool holds one accumulator per PID.
type packetPool struct {
	accs map[uint16]*packetAccumulator
	psi  programMap
}

func newPacketPool(pm programMap) *packetPool {
	return &packetPool{accs: make(map[uint16]*packetAccumulator), psi: pm}
}

func (pp *packetPool) add(p *Packet) []*Packet {
	acc, ok := pp.accs[p.Header.PID]
	if !ok {
		acc = &packetAccumulator{pid: p.Header.PID, psi: pp.psi}
		pp.accs[p.Header.PID] = acc
	}
	return acc.add(p)
}

// dump flushes every accumulator in PID order, so the PAT comes first.
func (pp *packetPool) dump() [][]*Packet {
	var all [][]*Packet
	for _, pid := range slices.Sorted(maps.Keys(pp.accs)) {
		if packets := pp.accs[pid].flush(); len(packets) > 0 {
			all = append(all, packets)
		}
	}
	return all
}

func (pp *packetPool) reset() {
	clear(pp.accs)
}
