package packet

import "sort"

// List is an in-memory packet table for plugins that parse a whole file up
// front (subtitle formats mostly). Cur is the index of the next packet Next
// returns.
type List struct {
	Packets []*Packet
	Cur     int
}

// Sort orders the packets by pts. Equal timestamps keep their order.
func (l *List) Sort() {
	sort.SliceStable(l.Packets, func(i, j int) bool {
		return l.Packets[i].PTS < l.Packets[j].PTS
	})
}

// Duration is the end time of the last packet, or 0 for an empty list.
func (l *List) Duration() float64 {
	if len(l.Packets) == 0 {
		return 0
	}
	last := l.Packets[len(l.Packets)-1]
	return last.PTS + last.Duration
}

// Seek moves the cursor to the last packet whose pts is not after the
// target. The target is rel seconds from the current packet, from zero when
// absolute is set, and rel is a fraction of Duration when factor is set.
func (l *List) Seek(rel float64, absolute, factor bool) {
	n := len(l.Packets)
	var ref float64
	switch {
	case l.Cur >= 0 && l.Cur < n:
		ref = l.Packets[l.Cur].PTS
	case l.Cur == n && n > 0:
		ref = l.Packets[n-1].PTS + l.Packets[n-1].Duration
	}

	if absolute {
		ref = 0
	}
	if factor {
		ref += l.Duration() * rel
	} else {
		ref += rel
	}

	last := 0
	for i, p := range l.Packets {
		if p.PTS > ref {
			break
		}
		last = i
	}
	l.Cur = last
}

// Next returns a copy of the packet at the cursor and advances it, or nil
// at the end of the list.
func (l *List) Next() *Packet {
	if l.Cur < 0 {
		l.Cur = 0
	}
	if l.Cur >= len(l.Packets) {
		return nil
	}
	p := l.Packets[l.Cur].Clone()
	p.Pos = l.Packets[l.Cur].Pos
	l.Cur++
	return p
}

// Release frees every packet in the list.
func (l *List) Release() {
	for _, p := range l.Packets {
		p.Release()
	}
	l.Packets = nil
	l.Cur = 0
}
