package scte35

// Splice command types.
const (
	SpliceNullType   uint32 = 0x00
	SpliceInsertType uint32 = 0x05
	TimeSignalType   uint32 = 0x06
)

// SpliceCommand is one splice_command() variant.
type SpliceCommand interface {
	Type() uint32
	decode(r *reader)
	encode(w writer)
}

// SpliceTime carries an optional PTS time in 90 kHz units.
type SpliceTime struct {
	PTSTime *uint64
}

func (st *SpliceTime) decode(r *reader) {
	if r.flag() {
		r.skip(6)
		pts := r.u64(33)
		st.PTSTime = &pts
		return
	}
	r.skip(7)
}

func (st SpliceTime) encode(w writer) {
	if st.PTSTime == nil {
		w.flag(false)
		w.u(0x7F, 7)
		return
	}
	w.flag(true)
	w.u(0x3F, 6)
	w.u(*st.PTSTime, 33)
}

// BreakDuration is the length of a break in 90 kHz units.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

// SpliceNull is a heartbeat.
type SpliceNull struct{}

func (*SpliceNull) Type() uint32    { return SpliceNullType }
func (*SpliceNull) decode(*reader) {}
func (*SpliceNull) encode(writer)  {}

// SpliceInsert signals a splice point. Component splice times are skipped
// on decode and never written.
type SpliceInsert struct {
	SpliceEventID              uint32
	SpliceEventCancelIndicator bool
	OutOfNetworkIndicator      bool
	ProgramSpliceFlag          bool
	SpliceImmediateFlag        bool
	SpliceTime                 SpliceTime
	BreakDuration              *BreakDuration
	UniqueProgramID            uint32
	AvailNum                   uint32
	AvailsExpected             uint32
}

func (*SpliceInsert) Type() uint32 { return SpliceInsertType }

func (cmd *SpliceInsert) decode(r *reader) {
	cmd.SpliceEventID = r.u32(32)
	cmd.SpliceEventCancelIndicator = r.flag()
	r.skip(7)
	if cmd.SpliceEventCancelIndicator {
		return
	}

	cmd.OutOfNetworkIndicator = r.flag()
	cmd.ProgramSpliceFlag = r.flag()
	durationFlag := r.flag()
	cmd.SpliceImmediateFlag = r.flag()
	r.skip(4)

	if cmd.ProgramSpliceFlag {
		if !cmd.SpliceImmediateFlag {
			cmd.SpliceTime.decode(r)
		}
	} else {
		components := int(r.u32(8))
		for range components {
			r.skip(8) // component_tag
			if !cmd.SpliceImmediateFlag {
				var st SpliceTime
				st.decode(r)
			}
		}
	}

	if durationFlag {
		cmd.BreakDuration = &BreakDuration{AutoReturn: r.flag()}
		r.skip(6)
		cmd.BreakDuration.Duration = r.u64(33)
	}
	cmd.UniqueProgramID = r.u32(16)
	cmd.AvailNum = r.u32(8)
	cmd.AvailsExpected = r.u32(8)
}

func (cmd *SpliceInsert) encode(w writer) {
	w.u(uint64(cmd.SpliceEventID), 32)
	w.flag(cmd.SpliceEventCancelIndicator)
	w.u(0x7F, 7)
	if cmd.SpliceEventCancelIndicator {
		return
	}

	w.flag(cmd.OutOfNetworkIndicator)
	w.flag(cmd.ProgramSpliceFlag)
	w.flag(cmd.BreakDuration != nil)
	w.flag(cmd.SpliceImmediateFlag)
	w.u(0x0F, 4)

	if cmd.ProgramSpliceFlag {
		if !cmd.SpliceImmediateFlag {
			cmd.SpliceTime.encode(w)
		}
	} else {
		w.u(0, 8) // component_count
	}

	if bd := cmd.BreakDuration; bd != nil {
		w.flag(bd.AutoReturn)
		w.u(0x3F, 6)
		w.u(bd.Duration, 33)
	}
	w.u(uint64(cmd.UniqueProgramID), 16)
	w.u(uint64(cmd.AvailNum), 8)
	w.u(uint64(cmd.AvailsExpected), 8)
}

// TimeSignal carries a splice time for the descriptors that follow it.
type TimeSignal struct {
	SpliceTime SpliceTime
}

func (*TimeSignal) Type() uint32 { return TimeSignalType }

func (cmd *TimeSignal) decode(r *reader) { cmd.SpliceTime.decode(r) }
func (cmd *TimeSignal) encode(w writer)  { cmd.SpliceTime.encode(w) }

// UnknownCommand keeps the raw bytes of a command type this package does
// not interpret.
type UnknownCommand struct {
	CommandType uint32
	Data        []byte
}

func (cmd *UnknownCommand) Type() uint32 { return cmd.CommandType }

func (cmd *UnknownCommand) decode(r *reader) {
	cmd.Data = r.bytes(r.n - r.consumed())
}

func (cmd *UnknownCommand) encode(w writer) { w.TryWrite(cmd.Data) }
