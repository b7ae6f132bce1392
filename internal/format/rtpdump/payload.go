package rtpdump

import (
	"fmt"

	"github.com/zsiec/vdemux/internal/demux"
)

type payloadType struct {
	typ      demux.TrackType
	codec    string
	clock    int
	channels int
}

// RFC 3551 static payload types.
var staticTypes = map[uint8]payloadType{
	0:  {demux.Audio, "pcm_mulaw", 8000, 1},
	3:  {demux.Audio, "gsm", 8000, 1},
	4:  {demux.Audio, "g723_1", 8000, 1},
	5:  {demux.Audio, "adpcm_ima_wav", 8000, 1},
	6:  {demux.Audio, "adpcm_ima_wav", 16000, 1},
	7:  {demux.Audio, "lpc", 8000, 1},
	8:  {demux.Audio, "pcm_alaw", 8000, 1},
	9:  {demux.Audio, "g722", 8000, 1},
	10: {demux.Audio, "pcm_s16be", 44100, 2},
	11: {demux.Audio, "pcm_s16be", 44100, 1},
	12: {demux.Audio, "qcelp", 8000, 1},
	13: {demux.Audio, "comfortnoise", 8000, 1},
	14: {demux.Audio, "mp3", 90000, 0},
	15: {demux.Audio, "g728", 8000, 1},
	16: {demux.Audio, "adpcm_ima_wav", 11025, 1},
	17: {demux.Audio, "adpcm_ima_wav", 22050, 1},
	18: {demux.Audio, "g729", 8000, 1},
	25: {demux.Video, "cavs", 90000, 0},
	26: {demux.Video, "mjpeg", 90000, 0},
	28: {demux.Video, "nv", 90000, 0},
	31: {demux.Video, "h261", 90000, 0},
	32: {demux.Video, "mpeg2video", 90000, 0},
	33: {demux.Video, "mpegts", 90000, 0},
	34: {demux.Video, "h263", 90000, 0},
}

// payloadTypeOf describes pt. Dynamic and unassigned types are taken as
// video on a 90 kHz clock, the common case for dynamic payloads.
func payloadTypeOf(pt uint8) payloadType {
	if t, ok := staticTypes[pt]; ok {
		return t
	}
	return payloadType{typ: demux.Video, codec: fmt.Sprintf("rtp_pt%d", pt), clock: 90000}
}
