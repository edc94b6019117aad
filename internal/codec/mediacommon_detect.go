package codec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// mediacommonCodecs maps canonical names to the mediacommon track codec that
// carries them. Checked once at init so that the registry follows whatever
// the linked mediacommon version can actually demux and mux.
var mediacommonCodecs = map[string]mpegts.Codec{
	string(VideoH264): &mpegts.CodecH264{},
	string(VideoH265): &mpegts.CodecH265{},
	string(AudioAAC):  &mpegts.CodecMPEG4Audio{},
	string(AudioAC3):  &mpegts.CodecAC3{},
	string(AudioEAC3): &mpegts.CodecEAC3{},
	string(AudioMP3):  &mpegts.CodecMPEG1Audio{},
	string(AudioOpus): &mpegts.CodecOpus{},
}

func init() {
	for name, c := range mediacommonCodecs {
		supported := !IsUnsupported(c)
		if info, ok := videoRegistry[Video(name)]; ok {
			info.Demuxable = supported
		}
		if info, ok := audioRegistry[Audio(name)]; ok {
			info.Demuxable = supported
		}
	}
}

// IsUnsupported reports whether c is mediacommon's placeholder for tracks it
// cannot demux.
func IsUnsupported(c mpegts.Codec) bool {
	_, isUnsupported := c.(*mpegts.CodecUnsupported)
	return isUnsupported
}

// IsMediacommonCodecSupported reports whether the pure-Go MPEG-TS backend can
// carry a stream of the given codec (any alias or encoder name is accepted).
func IsMediacommonCodecSupported(codecName string) bool {
	return IsDemuxable(Normalize(codecName))
}
