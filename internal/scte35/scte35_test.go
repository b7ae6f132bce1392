package scte35

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/vdemux/internal/mpegts"
)

// Sections captured from a broadcast chain, keyed by what they signal.
var goldenVectors = map[string]string{
	"ProviderAdStart":    "fc302700000000000000fff00506fe000dbba00011020f43554549000000017fbf0000300101ee197d02",
	"DistributorAdStart": "fc302c00000000000000fff00506fe000dbba00016021443554549000000027fff00002932e000003201031233f909",
	"DistributorAdEnd":   "fc302700000000000000fff00506fe000dbba00011020f43554549000000037fbf000033010352b10a71",
	"ProviderAdEnd":      "fc302700000000000000fff00506fe000dbba00011020f43554549000000047fbf0000310101de2663d0",
	"SpliceInsertOut":    "fc303200000000000000fff01005000000057fbf00fe007b98a0000101010011020f43554549000000057fbf00002201017f1add87",
	"SpliceInsertIn":     "fc302d00000000000000fff00b05000000067f1f00000101010011020f43554549000000067fbf0000230101c2262974",
	"ProgramStart":       "fc302700000000000000fff00506fe000dbba00011020f43554549000000077fbf0000100000ded1e682",
	"ChapterStart":       "fc302c00000000000000fff00506fe000dbba00016021443554549000000097fff00019bfcc00000200105bb3c1919",
	"ProgramEnd":         "fc302700000000000000fff00506fe000dbba00011020f435545490000000c7fbf0000110000e767f265",
	"ProviderPOStart":    "fc302c00000000000000fff00506fe000dbba000160214435545490000000f7fff00005265c0000034010288c9acbd",
}

func golden(t testing.TB, name string) []byte {
	t.Helper()
	data, err := hex.DecodeString(goldenVectors[name])
	require.NoError(t, err)
	return data
}

func ptr[T any](v T) *T { return &v }

func TestDecodeGolden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want *SpliceInfoSection
	}{
		{
			name: "ProviderAdStart",
			want: &SpliceInfoSection{
				SAPType: 3, Tier: 0xFFF,
				SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: ptr(uint64(900000))}},
				SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
					SegmentationEventID: 1, SegmentationTypeID: SegmentationTypeProviderAdStart, SegmentNum: 1, SegmentsExpected: 1,
				}},
			},
		},
		{
			name: "DistributorAdStart",
			want: &SpliceInfoSection{
				SAPType: 3, Tier: 0xFFF,
				SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: ptr(uint64(900000))}},
				SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
					SegmentationEventID: 2, SegmentationTypeID: SegmentationTypeDistributorAdStart,
					SegmentationDuration: ptr(uint64(30 * 90000)), SegmentNum: 1, SegmentsExpected: 3,
				}},
			},
		},
		{
			name: "SpliceInsertOut",
			want: &SpliceInfoSection{
				SAPType: 3, Tier: 0xFFF,
				SpliceCommand: &SpliceInsert{
					SpliceEventID: 5, OutOfNetworkIndicator: true, SpliceImmediateFlag: true,
					BreakDuration:   &BreakDuration{AutoReturn: true, Duration: 90 * 90000},
					UniqueProgramID: 1, AvailNum: 1, AvailsExpected: 1,
				},
				SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
					SegmentationEventID: 5, SegmentationTypeID: SegmentationTypeBreakStart, SegmentNum: 1, SegmentsExpected: 1,
				}},
			},
		},
		{
			name: "SpliceInsertIn",
			want: &SpliceInfoSection{
				SAPType: 3, Tier: 0xFFF,
				SpliceCommand: &SpliceInsert{
					SpliceEventID: 6, SpliceImmediateFlag: true,
					UniqueProgramID: 1, AvailNum: 1, AvailsExpected: 1,
				},
				SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
					SegmentationEventID: 6, SegmentationTypeID: SegmentationTypeBreakEnd, SegmentNum: 1, SegmentsExpected: 1,
				}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sis, err := DecodeBytes(golden(t, tt.name))
			require.NoError(t, err)
			require.Equal(t, tt.want, sis)
		})
	}
}

func TestEncodeMatchesGolden(t *testing.T) {
	t.Parallel()

	for name := range goldenVectors {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			data := golden(t, name)
			sis, err := DecodeBytes(data)
			require.NoError(t, err)
			out, err := sis.Encode()
			require.NoError(t, err)
			require.Equal(t, data, out)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	corrupt := golden(t, "ProviderAdStart")
	corrupt[20] ^= 0xFF

	wrongTable := golden(t, "ProviderAdStart")
	wrongTable[0] = 0x02

	long := golden(t, "ProviderAdStart")
	long[2] += 10

	tests := []struct {
		name string
		data []byte
		is   error
	}{
		{"empty", nil, ErrShort},
		{"corrupt crc", corrupt, mpegts.ErrCRC},
		{"table id", wrongTable, ErrTableID},
		{"length past data", long, ErrShort},
		{"too short", []byte{0xFC, 0x30, 0x05, 0, 0, 0, 0, 0}, ErrShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeBytes(tt.data)
			require.ErrorIs(t, err, tt.is)
		})
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	data := append(golden(t, "ProgramStart"), 0xFF, 0xFF, 0xFF)
	sis, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Equal(t, "Program Start", sis.Name())
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sis  *SpliceInfoSection
	}{
		{
			name: "program splice at time",
			sis: &SpliceInfoSection{
				SAPType: 3, Tier: 0xFFF, PTSAdjustment: 1000,
				SpliceCommand: &SpliceInsert{
					SpliceEventID: 42, OutOfNetworkIndicator: true, ProgramSpliceFlag: true,
					SpliceTime:    SpliceTime{PTSTime: ptr(uint64(180000))},
					BreakDuration: &BreakDuration{Duration: 30 * 90000},
				},
			},
		},
		{
			name: "cancel",
			sis: &SpliceInfoSection{
				SAPType:       3,
				SpliceCommand: &SpliceInsert{SpliceEventID: 7, SpliceEventCancelIndicator: true},
			},
		},
		{
			name: "time signal without time",
			sis:  &SpliceInfoSection{SAPType: 3, SpliceCommand: &TimeSignal{}},
		},
		{
			name: "splice null",
			sis:  &SpliceInfoSection{SAPType: 3, SpliceCommand: &SpliceNull{}},
		},
		{
			name: "unknown command",
			sis:  &SpliceInfoSection{SAPType: 3, SpliceCommand: &UnknownCommand{CommandType: 0xFF, Data: []byte{1, 2, 3}}},
		},
		{
			name: "descriptor with upid",
			sis: &SpliceInfoSection{
				SAPType:       3,
				SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: ptr(uint64(5))}},
				SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
					SegmentationEventID: 9, UPIDType: 0x09, UPID: []byte("SIGNAL:abc"),
					SegmentationTypeID: SegmentationTypeChapterStart, SegmentNum: 2, SegmentsExpected: 4,
				}},
			},
		},
		{
			name: "cancelled descriptor",
			sis: &SpliceInfoSection{
				SAPType:       3,
				SpliceCommand: &TimeSignal{},
				SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
					SegmentationEventID: 10, SegmentationEventCancelIndicator: true,
				}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := tt.sis.Encode()
			require.NoError(t, err)
			require.NoError(t, mpegts.VerifyCRC32(data))
			got, err := DecodeBytes(data)
			require.NoError(t, err)
			require.Equal(t, tt.sis, got)
		})
	}
}

func TestEncodeNilCommand(t *testing.T) {
	t.Parallel()

	data, err := (&SpliceInfoSection{SAPType: 3}).Encode()
	require.NoError(t, err)
	sis, err := DecodeBytes(data)
	require.NoError(t, err)
	require.IsType(t, &SpliceNull{}, sis.SpliceCommand)
	require.Empty(t, sis.SpliceDescriptors)
}

func TestDecodeLegacyCommandLength(t *testing.T) {
	t.Parallel()

	sis := &SpliceInfoSection{
		SAPType:       3,
		SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: ptr(uint64(900000))}},
		SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{
			SegmentationEventID: 1, SegmentationTypeID: SegmentationTypeNetworkStart,
		}},
	}
	data, err := sis.Encode()
	require.NoError(t, err)

	// splice_command_length = 0xFFF
	data[11] |= 0x0F
	data[12] = 0xFF
	binary.BigEndian.PutUint32(data[len(data)-4:], mpegts.CRC32(data[:len(data)-4]))

	got, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Equal(t, sis, got)
}

func TestSplicePTS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sis  *SpliceInfoSection
		pts  uint64
		ok   bool
	}{
		{"time signal", &SpliceInfoSection{SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: ptr(uint64(100))}}}, 100, true},
		{"adjusted", &SpliceInfoSection{PTSAdjustment: 50, SpliceCommand: &SpliceInsert{SpliceTime: SpliceTime{PTSTime: ptr(uint64(100))}}}, 150, true},
		{"wraps", &SpliceInfoSection{PTSAdjustment: 10, SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: ptr(uint64(1<<33 - 5))}}}, 5, true},
		{"immediate", &SpliceInfoSection{SpliceCommand: &SpliceInsert{SpliceImmediateFlag: true}}, 0, false},
		{"null", &SpliceInfoSection{SpliceCommand: &SpliceNull{}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pts, ok := tt.sis.SplicePTS()
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.pts, pts)
		})
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sis  *SpliceInfoSection
		want string
	}{
		{&SpliceInfoSection{SpliceCommand: &SpliceInsert{OutOfNetworkIndicator: true}}, "Splice Out"},
		{&SpliceInfoSection{SpliceCommand: &SpliceInsert{}}, "Splice In"},
		{&SpliceInfoSection{SpliceCommand: &SpliceInsert{SpliceEventCancelIndicator: true}}, "Splice Cancel"},
		{&SpliceInfoSection{SpliceCommand: &TimeSignal{}}, "Time Signal"},
		{&SpliceInfoSection{SpliceCommand: &SpliceNull{}}, "Splice Null"},
		{&SpliceInfoSection{SpliceCommand: &UnknownCommand{CommandType: 0x07}}, "Unknown"},
		{&SpliceInfoSection{
			SpliceCommand:     &SpliceInsert{},
			SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{SegmentationTypeID: SegmentationTypeProviderPOStart}},
		}, "Provider Placement Opportunity Start"},
		{&SpliceInfoSection{
			SpliceCommand:     &TimeSignal{},
			SpliceDescriptors: SpliceDescriptors{&SegmentationDescriptor{SegmentationTypeID: 0xFE}},
		}, "Unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.sis.Name())
	}
}

func FuzzDecodeBytes(f *testing.F) {
	for name := range goldenVectors {
		f.Add(golden(f, name))
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		sis, err := DecodeBytes(data)
		if err != nil {
			return
		}
		if _, err := sis.Encode(); err != nil {
			t.Fatal(err)
		}
	})
}

func BenchmarkDecode(b *testing.B) {
	data := golden(b, "SpliceInsertOut")
	b.SetBytes(int64(len(data)))
	for b.Loop() {
		if _, err := DecodeBytes(data); err != nil {
			b.Fatal(err)
		}
	}
}
