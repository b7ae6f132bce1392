package codec

import (
	"fmt"
	"math/bits"
	"strings"
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALBlaWLP     = 16
	HEVCNALIDRWRadl   = 19
	HEVCNALIDRNlp     = 20
	HEVCNALCraNut     = 21
	HEVCNALVPS        = 32
	HEVCNALSPS        = 33
	HEVCNALPPS        = 34
	HEVCNALAUD        = 35
	HEVCNALFillerData = 38
	HEVCNALSEIPrefix  = 39
)

// HEVCNALType extracts the type from the first byte of the 2-byte header.
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// IsHEVCKeyframe reports whether the NAL type is an IRAP picture (BLA, IDR, CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

func IsHEVCVPS(nalType byte) bool { return nalType == HEVCNALVPS }
func IsHEVCSPS(nalType byte) bool { return nalType == HEVCNALSPS }
func IsHEVCPPS(nalType byte) bool { return nalType == HEVCNALPPS }

// ParseAnnexBHEVC splits an Annex B stream using the 2-byte HEVC NAL header.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return splitAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// HEVCSPSInfo holds the fields of an HEVC SPS that describe a track.
type HEVCSPSInfo struct {
	Width      int
	Height     int
	ProfileIDC byte
	TierFlag   byte
	LevelIDC   byte

	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64

	ChromaFormatIdc      byte
	BitDepthLumaMinus8   byte
	BitDepthChromaMinus8 byte
}

// CodecString returns the RFC 6381 codec parameter, e.g. "hev1.1.6.L93.B0".
// Trailing zero constraint bytes are omitted.
func (s HEVCSPSInfo) CodecString() string {
	tier := "L"
	if s.TierFlag == 1 {
		tier = "H"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "hev1.%d.%X.%s%d", s.ProfileIDC, bits.Reverse32(s.ProfileCompatibilityFlags), tier, s.LevelIDC)

	n := 6
	for n > 0 && byte(s.ConstraintIndicatorFlags>>(8*(6-n))) == 0 {
		n--
	}
	for i := range n {
		fmt.Fprintf(&b, ".%X", byte(s.ConstraintIndicatorFlags>>(8*(5-i))))
	}
	return b.String()
}

// ParseHEVCSPS parses an HEVC SPS NAL unit, 2-byte header included. Fields
// after the picture size are best effort.
func ParseHEVCSPS(nalu []byte) (HEVCSPSInfo, error) {
	if len(nalu) < 4 {
		return HEVCSPSInfo{}, ErrShortSPS
	}
	r := newRBSPReader(unescapeRBSP(nalu[2:]))

	r.skip(4) // sps_video_parameter_set_id
	subLayers := r.u(3)
	r.skip(1) // sps_temporal_id_nesting_flag

	var info HEVCSPSInfo
	profileTierLevel(r, &info, subLayers)

	r.ue() // sps_seq_parameter_set_id
	chroma := r.ue()
	info.ChromaFormatIdc = byte(chroma)
	if chroma == 3 {
		r.skip(1) // separate_colour_plane_flag
	}
	info.Width = int(r.ue())
	info.Height = int(r.ue())
	if err := r.err(); err != nil {
		return HEVCSPSInfo{}, err
	}

	if r.flag() { // conformance_window_flag
		left, right, top, bottom := r.ue(), r.ue(), r.ue(), r.ue()
		if r.TryError != nil {
			return info, nil
		}
		subW, subH := uint(1), uint(1)
		switch chroma {
		case 1:
			subW, subH = 2, 2
		case 2:
			subW = 2
		}
		info.Width -= int((left + right) * subW)
		info.Height -= int((top + bottom) * subH)
	}
	luma, chromaDepth := r.ue(), r.ue()
	if r.TryError == nil {
		info.BitDepthLumaMinus8 = byte(luma)
		info.BitDepthChromaMinus8 = byte(chromaDepth)
	}
	return info, nil
}

func profileTierLevel(r rbspReader, info *HEVCSPSInfo, subLayers uint) {
	r.skip(2) // general_profile_space
	info.TierFlag = byte(r.u(1))
	info.ProfileIDC = byte(r.u(5))
	info.ProfileCompatibilityFlags = uint32(r.TryReadBits(32))
	info.ConstraintIndicatorFlags = r.TryReadBits(48)
	info.LevelIDC = byte(r.u(8))
	if subLayers == 0 {
		return
	}

	var profilePresent, levelPresent [8]bool
	for i := range subLayers {
		profilePresent[i] = r.flag()
		levelPresent[i] = r.flag()
	}
	if subLayers < 8 {
		r.skip(2 * (8 - subLayers)) // reserved_zero_2bits
	}
	for i := range subLayers {
		if profilePresent[i] {
			r.skip(88)
		}
		if levelPresent[i] {
			r.skip(8)
		}
	}
}
