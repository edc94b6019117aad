package libav

import (
	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
)

// codecIDs maps canonical codec names to libav codec IDs.
var codecIDs = map[media.CodecID]astiav.CodecID{
	media.CodecID(codec.VideoH264):   astiav.CodecIDH264,
	media.CodecID(codec.VideoH265):   astiav.CodecIDHevc,
	media.CodecID(codec.VideoVP8):    astiav.CodecIDVp8,
	media.CodecID(codec.VideoVP9):    astiav.CodecIDVp9,
	media.CodecID(codec.VideoAV1):    astiav.CodecIDAv1,
	media.CodecID(codec.VideoMPEG1):  astiav.CodecIDMpeg1Video,
	media.CodecID(codec.VideoMPEG2):  astiav.CodecIDMpeg2Video,
	media.CodecID(codec.VideoMPEG4):  astiav.CodecIDMpeg4,
	media.CodecID(codec.VideoMJPEG):  astiav.CodecIDMjpeg,
	media.CodecID(codec.AudioAAC):    astiav.CodecIDAac,
	media.CodecID(codec.AudioMP3):    astiav.CodecIDMp3,
	media.CodecID(codec.AudioMP2):    astiav.CodecIDMp2,
	media.CodecID(codec.AudioAC3):    astiav.CodecIDAc3,
	media.CodecID(codec.AudioEAC3):   astiav.CodecIDEac3,
	media.CodecID(codec.AudioOpus):   astiav.CodecIDOpus,
	media.CodecID(codec.AudioVorbis): astiav.CodecIDVorbis,
	media.CodecID(codec.AudioFLAC):   astiav.CodecIDFlac,
	media.CodecID(codec.AudioPCM):    astiav.CodecIDPcmS16Le,
}

// canonicalID names a libav codec ID the way the rest of the module does.
// Codecs outside the registry keep their libav name.
func canonicalID(id astiav.CodecID) media.CodecID {
	return media.CodecID(codec.Normalize(id.Name()))
}

func mediaType(t astiav.MediaType) media.MediaType {
	switch t {
	case astiav.MediaTypeAudio:
		return media.MediaTypeAudio
	case astiav.MediaTypeVideo:
		return media.MediaTypeVideo
	case astiav.MediaTypeSubtitle:
		return media.MediaTypeSubtitle
	case astiav.MediaTypeData:
		return media.MediaTypeData
	default:
		return media.MediaTypeUnknown
	}
}

func libavMediaType(t media.MediaType) astiav.MediaType {
	switch t {
	case media.MediaTypeAudio:
		return astiav.MediaTypeAudio
	case media.MediaTypeVideo:
		return astiav.MediaTypeVideo
	case media.MediaTypeSubtitle:
		return astiav.MediaTypeSubtitle
	case media.MediaTypeData:
		return astiav.MediaTypeData
	default:
		return astiav.MediaTypeUnknown
	}
}

func rational(r astiav.Rational) media.Rational {
	return media.NewRational(r.Num(), r.Den())
}

func libavRational(r media.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

// sampleFormats indexes libav sample formats by name.
var sampleFormats = func() map[string]astiav.SampleFormat {
	m := map[string]astiav.SampleFormat{}
	for _, f := range []astiav.SampleFormat{
		astiav.SampleFormatU8, astiav.SampleFormatS16, astiav.SampleFormatS32,
		astiav.SampleFormatFlt, astiav.SampleFormatDbl, astiav.SampleFormatS64,
		astiav.SampleFormatU8P, astiav.SampleFormatS16P, astiav.SampleFormatS32P,
		astiav.SampleFormatFltp, astiav.SampleFormatDblp, astiav.SampleFormatS64P,
	} {
		m[f.Name()] = f
	}
	return m
}()

func sampleFormat(name string) (astiav.SampleFormat, bool) {
	f, ok := sampleFormats[name]
	return f, ok
}

func pixelFormat(name string) (astiav.PixelFormat, bool) {
	f := astiav.FindPixelFormatByName(name)
	return f, f != astiav.PixelFormatNone
}

// channelLayout picks the libav layout for a channel count.
func channelLayout(channels int) astiav.ChannelLayout {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono
	case 3:
		return astiav.ChannelLayout2Point1
	case 4:
		return astiav.ChannelLayoutQuad
	case 5:
		return astiav.ChannelLayout5Point0
	case 6:
		return astiav.ChannelLayout5Point1
	case 8:
		return astiav.ChannelLayout7Point1
	default:
		return astiav.ChannelLayoutStereo
	}
}

// streamParameters describes libav codec parameters in media terms.
func streamParameters(cp *astiav.CodecParameters) media.CodecParameters {
	p := media.CodecParameters{
		MediaType: mediaType(cp.MediaType()),
		CodecID:   canonicalID(cp.CodecID()),
		CodecTag:  uint32(cp.CodecTag()),
		BitRate:   cp.BitRate(),
		Extradata: cp.ExtraData(),
		Native:    cp,
	}
	switch p.MediaType {
	case media.MediaTypeAudio:
		p.SampleRate = cp.SampleRate()
		p.Channels = cp.ChannelLayout().Channels()
		p.ChannelLayout = cp.ChannelLayout().String()
		p.SampleFormat = cp.SampleFormat().Name()
	case media.MediaTypeVideo:
		p.Width = cp.Width()
		p.Height = cp.Height()
		p.PixelFormat = cp.PixelFormat().Name()
	}
	return p
}

// contextParameters describes an opened codec context in media terms.
func contextParameters(cc *astiav.CodecContext) media.CodecParameters {
	p := media.CodecParameters{
		MediaType: mediaType(cc.MediaType()),
		CodecID:   canonicalID(cc.CodecID()),
		BitRate:   cc.BitRate(),
		Native:    cc,
	}
	switch p.MediaType {
	case media.MediaTypeAudio:
		p.SampleRate = cc.SampleRate()
		p.Channels = cc.ChannelLayout().Channels()
		p.ChannelLayout = cc.ChannelLayout().String()
		p.SampleFormat = cc.SampleFormat().Name()
	case media.MediaTypeVideo:
		p.Width = cc.Width()
		p.Height = cc.Height()
		p.PixelFormat = cc.PixelFormat().Name()
	}
	return p
}

// fillParameters writes p into cp. Parameters that came from libav are
// copied verbatim; others are rebuilt field by field.
func fillParameters(cp *astiav.CodecParameters, p media.CodecParameters) error {
	switch native := p.Native.(type) {
	case *astiav.CodecParameters:
		if err := native.Copy(cp); err != nil {
			return wrapError("copy codec parameters", err)
		}
	case *astiav.CodecContext:
		if err := cp.FromCodecContext(native); err != nil {
			return wrapError("copy codec parameters", err)
		}
	default:
		id, ok := codecIDs[media.CodecID(codec.Normalize(string(p.CodecID)))]
		if !ok {
			return notFound("copy codec parameters", string(p.CodecID), astiav.ErrDecoderNotFound)
		}
		cp.SetMediaType(libavMediaType(p.MediaType))
		cp.SetCodecID(id)
		cp.SetBitRate(p.BitRate)
		switch p.MediaType {
		case media.MediaTypeAudio:
			cp.SetSampleRate(p.SampleRate)
			cp.SetChannelLayout(channelLayout(p.Channels))
		case media.MediaTypeVideo:
			cp.SetWidth(p.Width)
			cp.SetHeight(p.Height)
		}
		if len(p.Extradata) > 0 {
			if err := cp.SetExtraData(p.Extradata); err != nil {
				return wrapError("copy codec parameters", err)
			}
		}
	}
	cp.SetCodecTag(astiav.CodecTag(p.CodecTag))
	return nil
}
