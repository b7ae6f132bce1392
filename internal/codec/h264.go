package codec

import "fmt"

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	NALTypeSlice      = 1
	NALTypeIDR        = 5
	NALTypeSEI        = 6
	NALTypeSPS        = 7
	NALTypePPS        = 8
	NALTypeAUD        = 9
	NALTypeFillerData = 12
)

// SPSInfo holds the H.264 sequence parameters a video track header needs,
// plus the HRD field lengths required to walk pic_timing SEI messages.
type SPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte

	// FPS is derived from VUI timing info, 0 when absent.
	FPS float64
	// SARNum/SARDen is the sample aspect ratio, 0/0 when unspecified.
	SARNum, SARDen int

	PicStructPresent   bool
	HRDPresent         bool
	CpbRemovalDelayLen int
	DpbOutputDelayLen  int
	TimeOffsetLen      int
}

// CodecString returns the RFC 6381 codec parameter, e.g. "avc1.42E01E".
func (s SPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

// Aspect returns the display aspect ratio, or 0 when it cannot be derived.
func (s SPSInfo) Aspect() float64 {
	if s.Width == 0 || s.Height == 0 {
		return 0
	}
	a := float64(s.Width) / float64(s.Height)
	if s.SARNum > 0 && s.SARDen > 0 {
		a *= float64(s.SARNum) / float64(s.SARDen)
	}
	return a
}

// Timecode is a SMPTE 12M timecode carried in a pic_timing SEI.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

func (tc Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", tc.Hours, tc.Minutes, tc.Seconds, tc.Frames)
}

// Table E-1.
var sarTable = [...][2]int{
	{0, 0}, {1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11}, {20, 11},
	{32, 11}, {80, 33}, {18, 11}, {15, 11}, {64, 33}, {160, 99}, {4, 3}, {3, 2}, {2, 1},
}

func highProfile(idc uint) bool {
	switch idc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134:
		return true
	}
	return false
}

// ParseSPS parses an H.264 SPS NAL unit (header byte included, start code
// excluded). Truncation inside the mandatory fields is an error; truncation
// inside VUI returns what was read so far.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, ErrShortSPS
	}
	r := newRBSPReader(unescapeRBSP(nalu[1:]))

	var info SPSInfo
	profile := r.u(8)
	info.ProfileIDC = byte(profile)
	info.ConstraintFlags = byte(r.u(8))
	info.LevelIDC = byte(r.u(8))
	r.ue() // seq_parameter_set_id

	chromaFormat := uint(1)
	separatePlanes := false
	if highProfile(profile) {
		if chromaFormat = r.ue(); chromaFormat == 3 {
			separatePlanes = r.flag()
		}
		r.ue()    // bit_depth_luma_minus8
		r.ue()    // bit_depth_chroma_minus8
		r.skip(1) // qpprime_y_zero_transform_bypass_flag
		if r.flag() {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := range lists {
				if !r.flag() {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				skipScalingList(r, size)
			}
		}
	}

	r.ue() // log2_max_frame_num_minus4
	switch r.ue() {
	case 0:
		r.ue() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		r.skip(1)
		r.se()
		r.se()
		for n := r.ue(); n > 0 && r.TryError == nil; n-- {
			r.se()
		}
	}
	r.ue()    // max_num_ref_frames
	r.skip(1) // gaps_in_frame_num_value_allowed_flag

	widthMbs := r.ue() + 1
	heightUnits := r.ue() + 1
	frameMbsOnly := uint(0)
	if r.flag() {
		frameMbsOnly = 1
	} else {
		r.skip(1) // mb_adaptive_frame_field_flag
	}
	r.skip(1) // direct_8x8_inference_flag

	var cropL, cropR, cropT, cropB uint
	if r.flag() {
		cropL, cropR, cropT, cropB = r.ue(), r.ue(), r.ue(), r.ue()
	}
	if err := r.err(); err != nil {
		return SPSInfo{}, err
	}

	subW, subH := uint(2), uint(2)
	switch {
	case separatePlanes || chromaFormat == 0 || chromaFormat == 3:
		subW, subH = 1, 1
	case chromaFormat == 2:
		subH = 1
	}
	fieldMul := 2 - frameMbsOnly
	info.Width = int(widthMbs*16 - subW*(cropL+cropR))
	info.Height = int(heightUnits*16*fieldMul - subH*fieldMul*(cropT+cropB))

	if r.flag() {
		parseVUI(r, &info)
	}
	return info, nil
}

func skipScalingList(r rbspReader, size int) {
	last, next := 8, 8
	for range size {
		if next != 0 {
			next = (last + r.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
		if r.TryError != nil {
			return
		}
	}
}

// parseVUI reads the VUI fields that feed SPSInfo. It stops silently on
// truncation.
func parseVUI(r rbspReader, info *SPSInfo) {
	if r.flag() { // aspect_ratio_info_present_flag
		idc := r.u(8)
		switch {
		case idc == 255:
			info.SARNum, info.SARDen = int(r.u(16)), int(r.u(16))
		case idc < uint(len(sarTable)):
			info.SARNum, info.SARDen = sarTable[idc][0], sarTable[idc][1]
		}
	}
	if r.flag() { // overscan_info_present_flag
		r.skip(1)
	}
	if r.flag() { // video_signal_type_present_flag
		r.skip(4)
		if r.flag() {
			r.skip(24)
		}
	}
	if r.flag() { // chroma_loc_info_present_flag
		r.ue()
		r.ue()
	}
	if r.flag() { // timing_info_present_flag
		units, scale := r.u(32), r.u(32)
		r.skip(1)
		if units > 0 && r.TryError == nil {
			info.FPS = float64(scale) / float64(2*units)
		}
	}

	hrd := func() {
		cpbCnt := r.ue()
		r.skip(8)
		for i := uint(0); i <= cpbCnt && r.TryError == nil; i++ {
			r.ue()
			r.ue()
			r.skip(1)
		}
		r.skip(5)
		info.CpbRemovalDelayLen = int(r.u(5)) + 1
		info.DpbOutputDelayLen = int(r.u(5)) + 1
		info.TimeOffsetLen = int(r.u(5))
		info.HRDPresent = r.TryError == nil
	}
	nalHRD := r.flag()
	if nalHRD {
		hrd()
	}
	vclHRD := r.flag()
	if vclHRD && !info.HRDPresent {
		hrd()
	}
	if nalHRD || vclHRD {
		r.skip(1) // low_delay_hrd_flag
	}
	info.PicStructPresent = r.flag()
}

// NALUnit is one NAL unit from an Annex B stream, without its start code.
type NALUnit struct {
	Type byte
	Data []byte
}

// splitAnnexB returns the NAL units between start codes (3 or 4 bytes).
// Zero bytes preceding a start code belong to the start code.
func splitAnnexB(data []byte, minLen int, typ func([]byte) byte) []NALUnit {
	if len(data) < 4 {
		return nil
	}
	var units []NALUnit
	start := -1
	emit := func(end int) {
		if start >= 0 && end-start >= minLen {
			units = append(units, NALUnit{Type: typ(data[start:end]), Data: data[start:end]})
		}
	}
	for i := 0; i+2 < len(data); {
		if data[i] != 0 || data[i+1] != 0 {
			i++
			continue
		}
		switch {
		case data[i+2] == 1:
			emit(i)
			start = i + 3
			i += 3
		case i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1:
			emit(i)
			start = i + 4
			i += 4
		default:
			i++
		}
	}
	emit(len(data))
	return units
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return splitAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// IsKeyframe reports whether the NAL type is an IDR slice.
func IsKeyframe(nalType byte) bool { return nalType == NALTypeIDR }

func IsSPS(nalType byte) bool { return nalType == NALTypeSPS }

func IsPPS(nalType byte) bool { return nalType == NALTypePPS }

// ParsePicTimingSEI returns the first clock timestamp of a pic_timing SEI
// message. sps must carry HRD and pic_struct information, otherwise the
// payload cannot be walked.
func ParsePicTimingSEI(seiNALU []byte, sps SPSInfo) (Timecode, bool) {
	if len(seiNALU) < 2 || !sps.PicStructPresent || !sps.HRDPresent {
		return Timecode{}, false
	}
	rbsp := unescapeRBSP(seiNALU[1:])
	for len(rbsp) > 0 && rbsp[0] != 0x80 {
		typ, n := seiVarint(rbsp)
		if n == 0 {
			break
		}
		size, m := seiVarint(rbsp[n:])
		if m == 0 || n+m+size > len(rbsp) {
			break
		}
		payload := rbsp[n+m : n+m+size]
		if typ == 1 {
			if tc, ok := picTiming(payload, sps); ok {
				return tc, true
			}
		}
		rbsp = rbsp[n+m+size:]
	}
	return Timecode{}, false
}

// seiVarint reads an SEI payload type or size (0xFF-extended). n is 0 when
// data ends first.
func seiVarint(data []byte) (v, n int) {
	for n < len(data) {
		b := data[n]
		n++
		v += int(b)
		if b != 0xFF {
			return v, n
		}
	}
	return 0, 0
}

func picTiming(payload []byte, sps SPSInfo) (Timecode, bool) {
	r := newRBSPReader(payload)

	r.skip(uint(sps.CpbRemovalDelayLen + sps.DpbOutputDelayLen))
	clocks := 1
	switch r.u(4) {
	case 3, 4:
		clocks = 2
	case 5, 6, 7, 8:
		clocks = 3
	}
	for range clocks {
		if !r.flag() { // clock_timestamp_flag
			if r.TryError != nil {
				return Timecode{}, false
			}
			continue
		}
		r.skip(2 + 1 + 5) // ct_type, nuit_field_based_flag, counting_type
		full := r.flag()
		r.skip(2) // discontinuity_flag, cnt_dropped_flag
		tc := Timecode{Frames: int(r.u(8))}
		if full {
			tc.Seconds, tc.Minutes, tc.Hours = int(r.u(6)), int(r.u(6)), int(r.u(5))
		} else if r.flag() {
			tc.Seconds = int(r.u(6))
			if r.flag() {
				tc.Minutes = int(r.u(6))
				if r.flag() {
					tc.Hours = int(r.u(5))
				}
			}
		}
		if r.TryError != nil {
			return Timecode{}, false
		}
		return tc, true
	}
	return Timecode{}, false
}
