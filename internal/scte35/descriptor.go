package scte35

import "fmt"

const (
	// SegmentationDescriptorTag is the splice_descriptor_tag of
	// segmentation_descriptor().
	SegmentationDescriptorTag uint32 = 0x02

	// CUEIdentifier is "CUEI", the identifier of SCTE-35 descriptors.
	CUEIdentifier uint32 = 0x43554549
)

// Segmentation type IDs used by this project.
const (
	SegmentationTypeNotIndicated          uint32 = 0x00
	SegmentationTypeContentIdentification uint32 = 0x01
	SegmentationTypeProgramStart          uint32 = 0x10
	SegmentationTypeProgramEnd            uint32 = 0x11
	SegmentationTypeChapterStart          uint32 = 0x20
	SegmentationTypeChapterEnd            uint32 = 0x21
	SegmentationTypeBreakStart            uint32 = 0x22
	SegmentationTypeBreakEnd              uint32 = 0x23
	SegmentationTypeProviderAdStart       uint32 = 0x30
	SegmentationTypeProviderAdEnd         uint32 = 0x31
	SegmentationTypeDistributorAdStart    uint32 = 0x32
	SegmentationTypeDistributorAdEnd      uint32 = 0x33
	SegmentationTypeProviderPOStart       uint32 = 0x34
	SegmentationTypeProviderPOEnd         uint32 = 0x35
	SegmentationTypeUnscheduledEventStart uint32 = 0x40
	SegmentationTypeUnscheduledEventEnd   uint32 = 0x41
	SegmentationTypeNetworkStart          uint32 = 0x50
	SegmentationTypeNetworkEnd            uint32 = 0x51
)

var segmentationNames = map[uint32]string{
	0x00: "Not Indicated",
	0x01: "Content Identification",
	0x10: "Program Start",
	0x11: "Program End",
	0x12: "Program Early Termination",
	0x13: "Program Breakaway",
	0x14: "Program Resumption",
	0x15: "Program Runover Planned",
	0x16: "Program Runover Unplanned",
	0x17: "Program Overlap Start",
	0x18: "Program Blackout Override",
	0x19: "Program Start - In Progress",
	0x20: "Chapter Start",
	0x21: "Chapter End",
	0x22: "Break Start",
	0x23: "Break End",
	0x24: "Opening Credit Start",
	0x25: "Opening Credit End",
	0x26: "Closing Credit Start",
	0x27: "Closing Credit End",
	0x30: "Provider Advertisement Start",
	0x31: "Provider Advertisement End",
	0x32: "Distributor Advertisement Start",
	0x33: "Distributor Advertisement End",
	0x34: "Provider Placement Opportunity Start",
	0x35: "Provider Placement Opportunity End",
	0x36: "Distributor Placement Opportunity Start",
	0x37: "Distributor Placement Opportunity End",
	0x38: "Provider Overlay Placement Opportunity Start",
	0x39: "Provider Overlay Placement Opportunity End",
	0x3A: "Distributor Overlay Placement Opportunity Start",
	0x3B: "Distributor Overlay Placement Opportunity End",
	0x3C: "Provider Promo Start",
	0x3D: "Provider Promo End",
	0x3E: "Distributor Promo Start",
	0x3F: "Distributor Promo End",
	0x40: "Unscheduled Event Start",
	0x41: "Unscheduled Event End",
	0x42: "Alternate Content Opportunity Start",
	0x43: "Alternate Content Opportunity End",
	0x44: "Provider Ad Block Start",
	0x45: "Provider Ad Block End",
	0x46: "Distributor Ad Block Start",
	0x47: "Distributor Ad Block End",
	0x50: "Network Start",
	0x51: "Network End",
}

// SpliceDescriptor is one splice_descriptor() with a CUEI identifier.
type SpliceDescriptor interface {
	Tag() uint32
	decode(r *reader)
	encode(w writer)
}

type SpliceDescriptors []SpliceDescriptor

func (ds SpliceDescriptors) encode() ([]byte, error) {
	var out []byte
	for _, d := range ds {
		body, err := encodeBits(func(w writer) {
			w.u(uint64(CUEIdentifier), 32)
			d.encode(w)
		})
		if err != nil {
			return nil, err
		}
		if len(body) > 0xFF {
			return nil, fmt.Errorf("scte35: descriptor 0x%02X too long", d.Tag())
		}
		out = append(out, byte(d.Tag()), byte(len(body)))
		out = append(out, body...)
	}
	return out, nil
}

// decodeDescriptors parses the descriptor loop, keeping segmentation
// descriptors and skipping everything else.
func decodeDescriptors(data []byte) (SpliceDescriptors, error) {
	var ds SpliceDescriptors
	for len(data) >= 2 {
		tag, n := uint32(data[0]), int(data[1])
		if 2+n > len(data) {
			return ds, ErrShort
		}
		body := data[2 : 2+n]
		data = data[2+n:]
		if tag != SegmentationDescriptorTag || n < 4 {
			continue
		}

		r := newReader(body)
		if r.u32(32) != CUEIdentifier {
			continue
		}
		sd := &SegmentationDescriptor{}
		sd.decode(r)
		if err := r.err(); err != nil {
			return ds, fmt.Errorf("scte35: segmentation descriptor: %w", err)
		}
		ds = append(ds, sd)
	}
	return ds, nil
}

// SegmentationDescriptor is segmentation_descriptor(). Component offsets
// and delivery restrictions are skipped; sub-segment fields are ignored.
type SegmentationDescriptor struct {
	SegmentationEventID              uint32
	SegmentationEventCancelIndicator bool
	SegmentationDuration             *uint64
	UPIDType                         uint32
	UPID                             []byte
	SegmentationTypeID               uint32
	SegmentNum                       uint32
	SegmentsExpected                 uint32
}

func (*SegmentationDescriptor) Tag() uint32 { return SegmentationDescriptorTag }

// Name returns the human readable segmentation type.
func (sd *SegmentationDescriptor) Name() string {
	if name, ok := segmentationNames[sd.SegmentationTypeID]; ok {
		return name
	}
	return "Unknown"
}

func (sd *SegmentationDescriptor) decode(r *reader) {
	sd.SegmentationEventID = r.u32(32)
	sd.SegmentationEventCancelIndicator = r.flag()
	r.skip(7) // compliance indicator, reserved
	if sd.SegmentationEventCancelIndicator {
		return
	}

	programSegmentation := r.flag()
	durationFlag := r.flag()
	r.skip(1 + 5) // delivery_not_restricted_flag, restrictions or reserved
	if !programSegmentation {
		components := int(r.u32(8))
		r.skip(components * (8 + 7 + 33))
	}
	if durationFlag {
		d := r.u64(40)
		sd.SegmentationDuration = &d
	}
	sd.UPIDType = r.u32(8)
	if n := int(r.u32(8)); n > 0 {
		sd.UPID = r.bytes(n)
	}
	sd.SegmentationTypeID = r.u32(8)
	sd.SegmentNum = r.u32(8)
	sd.SegmentsExpected = r.u32(8)
}

func (sd *SegmentationDescriptor) encode(w writer) {
	w.u(uint64(sd.SegmentationEventID), 32)
	w.flag(sd.SegmentationEventCancelIndicator)
	w.flag(true) // segmentation_event_id_compliance_indicator
	w.u(0x3F, 6)
	if sd.SegmentationEventCancelIndicator {
		return
	}

	w.flag(true) // program_segmentation_flag
	w.flag(sd.SegmentationDuration != nil)
	w.flag(true) // delivery_not_restricted_flag
	w.u(0x1F, 5)
	if sd.SegmentationDuration != nil {
		w.u(*sd.SegmentationDuration, 40)
	}
	w.u(uint64(sd.UPIDType), 8)
	w.u(uint64(len(sd.UPID)), 8)
	w.TryWrite(sd.UPID)
	w.u(uint64(sd.SegmentationTypeID), 8)
	w.u(uint64(sd.SegmentNum), 8)
	w.u(uint64(sd.SegmentsExpected), 8)
}
