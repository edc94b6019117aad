// Package codec provides a unified codec registry for video and audio codecs.
// It maps codec names, aliases and FFmpeg encoder names to canonical codec
// identifiers and holds the extension rules used for stream selection.
package codec

import (
	"path"
	"sort"
	"strings"
)

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoH264  Video = "h264" // H.264/AVC
	VideoH265  Video = "h265" // H.265/HEVC
	VideoVP8   Video = "vp8"
	VideoVP9   Video = "vp9"
	VideoAV1   Video = "av1"
	VideoMPEG1 Video = "mpeg1"
	VideoMPEG2 Video = "mpeg2"
	VideoMPEG4 Video = "mpeg4"
	VideoMJPEG Video = "mjpeg"
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioAAC    Audio = "aac"
	AudioMP3    Audio = "mp3"
	AudioMP2    Audio = "mp2"
	AudioAC3    Audio = "ac3"  // Dolby Digital (AC-3)
	AudioEAC3   Audio = "eac3" // Dolby Digital Plus (E-AC-3)
	AudioOpus   Audio = "opus"
	AudioVorbis Audio = "vorbis"
	AudioFLAC   Audio = "flac"
	AudioPCM    Audio = "pcm"
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// videoInfo contains metadata about a video codec.
type videoInfo struct {
	Name Video
	// All known aliases and encoder names that map to this codec
	Aliases []string
	// Default software encoder
	Encoder string
	// Libav codec name (may differ from the canonical name, e.g. hevc)
	LibavName string
	// Whether mediacommon's MPEG-TS reader/writer handles this codec
	Demuxable bool
}

// audioInfo contains metadata about an audio codec.
type audioInfo struct {
	Name      Audio
	Aliases   []string
	Encoder   string
	LibavName string
	Demuxable bool
}

// videoRegistry contains all video codec definitions.
var videoRegistry = map[Video]*videoInfo{
	VideoH264: {
		Name: VideoH264,
		Aliases: []string{
			"h264", "avc", "avc1", "h.264", "264",
			// Encoders
			"libx264", "libx264rgb", "libopenh264", "h264_nvenc", "h264_qsv", "h264_vaapi",
			"h264_videotoolbox", "h264_amf", "h264_mf", "h264_omx", "h264_v4l2m2m",
		},
		Encoder:   "libx264",
		LibavName: "h264",
		Demuxable: true,
	},
	VideoH265: {
		Name: VideoH265,
		Aliases: []string{
			"h265", "hevc", "hev1", "hvc1", "h.265", "265",
			// Encoders
			"libx265", "hevc_nvenc", "hevc_qsv", "hevc_vaapi",
			"hevc_videotoolbox", "hevc_amf", "hevc_mf", "hevc_v4l2m2m",
		},
		Encoder:   "libx265",
		LibavName: "hevc",
		Demuxable: true,
	},
	VideoVP8: {
		Name:      VideoVP8,
		Aliases:   []string{"vp8", "libvpx", "vp8_vaapi"},
		Encoder:   "libvpx",
		LibavName: "vp8",
	},
	VideoVP9: {
		Name:      VideoVP9,
		Aliases:   []string{"vp9", "vp09", "libvpx-vp9", "vp9_qsv", "vp9_vaapi"},
		Encoder:   "libvpx-vp9",
		LibavName: "vp9",
	},
	VideoAV1: {
		Name: VideoAV1,
		Aliases: []string{
			"av1", "av01",
			"libaom-av1", "libsvtav1", "librav1e",
			"av1_nvenc", "av1_qsv", "av1_vaapi", "av1_amf",
		},
		Encoder:   "libaom-av1",
		LibavName: "av1",
	},
	VideoMPEG1: {
		Name:      VideoMPEG1,
		Aliases:   []string{"mpeg1", "mpeg1video"},
		Encoder:   "mpeg1video",
		LibavName: "mpeg1video",
	},
	VideoMPEG2: {
		Name:      VideoMPEG2,
		Aliases:   []string{"mpeg2", "mpeg2video"},
		Encoder:   "mpeg2video",
		LibavName: "mpeg2video",
	},
	VideoMPEG4: {
		Name:      VideoMPEG4,
		Aliases:   []string{"mpeg4", "libxvid"},
		Encoder:   "mpeg4",
		LibavName: "mpeg4",
	},
	VideoMJPEG: {
		Name:      VideoMJPEG,
		Aliases:   []string{"mjpeg", "jpeg"},
		Encoder:   "mjpeg",
		LibavName: "mjpeg",
	},
}

// audioRegistry contains all audio codec definitions.
var audioRegistry = map[Audio]*audioInfo{
	AudioAAC: {
		Name:      AudioAAC,
		Aliases:   []string{"aac", "mp4a", "libfdk_aac", "aac_at", "aac_mf"},
		Encoder:   "aac",
		LibavName: "aac",
		Demuxable: true,
	},
	AudioMP3: {
		Name:      AudioMP3,
		Aliases:   []string{"mp3", "mp3float", "libmp3lame", "libshine", "mp3_mf"},
		Encoder:   "libmp3lame",
		LibavName: "mp3",
		Demuxable: true,
	},
	AudioMP2: {
		Name:      AudioMP2,
		Aliases:   []string{"mp2", "mp2fixed", "libtwolame"},
		Encoder:   "mp2",
		LibavName: "mp2",
	},
	AudioAC3: {
		Name:      AudioAC3,
		Aliases:   []string{"ac3", "ac-3", "a52", "ac3_fixed", "ac3_mf"},
		Encoder:   "ac3",
		LibavName: "ac3",
		Demuxable: true,
	},
	AudioEAC3: {
		Name:      AudioEAC3,
		Aliases:   []string{"eac3", "ec-3"},
		Encoder:   "eac3",
		LibavName: "eac3",
		Demuxable: true,
	},
	AudioOpus: {
		Name:      AudioOpus,
		Aliases:   []string{"opus", "libopus"},
		Encoder:   "libopus",
		LibavName: "opus",
		Demuxable: true,
	},
	AudioVorbis: {
		Name:      AudioVorbis,
		Aliases:   []string{"vorbis", "libvorbis"},
		Encoder:   "libvorbis",
		LibavName: "vorbis",
	},
	AudioFLAC: {
		Name:      AudioFLAC,
		Aliases:   []string{"flac", "libflac"},
		Encoder:   "flac",
		LibavName: "flac",
	},
	AudioPCM: {
		Name:      AudioPCM,
		Aliases:   []string{"pcm", "pcm_s16le", "wav"},
		Encoder:   "pcm_s16le",
		LibavName: "pcm_s16le",
	},
}

// videoAliasIndex maps all aliases to their canonical codec.
var videoAliasIndex map[string]Video

// audioAliasIndex maps all aliases to their canonical codec.
var audioAliasIndex map[string]Audio

// libavIndex maps libav codec names back to canonical names.
var libavIndex map[string]string

func init() {
	videoAliasIndex = make(map[string]Video)
	libavIndex = make(map[string]string)
	for codec, info := range videoRegistry {
		for _, alias := range info.Aliases {
			videoAliasIndex[strings.ToLower(alias)] = codec
		}
		libavIndex[info.LibavName] = string(codec)
	}

	audioAliasIndex = make(map[string]Audio)
	for codec, info := range audioRegistry {
		for _, alias := range info.Aliases {
			audioAliasIndex[strings.ToLower(alias)] = codec
		}
		libavIndex[info.LibavName] = string(codec)
	}
}

// ParseVideo parses a string (codec name, alias, or encoder) to a Video codec.
// Returns the canonical codec and whether the parse was successful.
func ParseVideo(s string) (Video, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := videoAliasIndex[s]
	return codec, ok
}

// ParseAudio parses a string (codec name, alias, or encoder) to an Audio codec.
// Returns the canonical codec and whether the parse was successful.
func ParseAudio(s string) (Audio, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := audioAliasIndex[s]
	return codec, ok
}

// Normalize converts any codec string (encoder name, alias) to its canonical form.
// Returns the input unchanged if not recognized.
func Normalize(name string) string {
	if name == "" {
		return name
	}
	lower := strings.ToLower(name)

	if codec, ok := videoAliasIndex[lower]; ok {
		return string(codec)
	}
	if codec, ok := audioAliasIndex[lower]; ok {
		return string(codec)
	}
	if canonical, ok := libavIndex[lower]; ok {
		return canonical
	}

	return name
}

// CodecIDForEncoder is the documented encoder-name to codec-identifier
// fallback table: when an encoder cannot be resolved by name, the codec it
// produces is looked up here and an encoder is resolved by identifier instead.
func CodecIDForEncoder(name string) (string, bool) {
	if v, ok := ParseVideo(name); ok {
		return string(v), true
	}
	if a, ok := ParseAudio(name); ok {
		return string(a), true
	}
	return "", false
}

// LibavName returns the libav codec name for a canonical codec.
func LibavName(canonical string) string {
	if info, ok := videoRegistry[Video(canonical)]; ok {
		return info.LibavName
	}
	if info, ok := audioRegistry[Audio(canonical)]; ok {
		return info.LibavName
	}
	return canonical
}

// IsEncoder returns true if the name appears to be an FFmpeg encoder name
// rather than a codec name.
func IsEncoder(name string) bool {
	name = strings.ToLower(name)

	if strings.HasPrefix(name, "lib") {
		return true
	}

	hwSuffixes := []string{
		"_nvenc", "_qsv", "_vaapi", "_videotoolbox", "_amf",
		"_mf", "_omx", "_v4l2m2m", "_at", "_fixed",
	}
	for _, suffix := range hwSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

// softwarePresetFamilies are encoder families that accept the x264-style
// "preset" private option.
var softwarePresetFamilies = []string{"libx264", "libx265"}

// HasSpeedPreset reports whether the encoder belongs to a software encoder
// family that takes a speed/quality preset.
func HasSpeedPreset(encoder string) bool {
	encoder = strings.ToLower(encoder)
	for _, family := range softwarePresetFamilies {
		if strings.HasPrefix(encoder, family) {
			return true
		}
	}
	return false
}

// DefaultVideoEncoder returns the software encoder for a video codec.
func DefaultVideoEncoder(v Video) string {
	if info, ok := videoRegistry[v]; ok {
		return info.Encoder
	}
	return string(v)
}

// DefaultAudioEncoder returns the encoder for an audio codec.
func DefaultAudioEncoder(a Audio) string {
	if info, ok := audioRegistry[a]; ok {
		return info.Encoder
	}
	return string(a)
}

// IsDemuxable reports whether the mediacommon MPEG-TS layer handles the codec.
func IsDemuxable(canonical string) bool {
	if info, ok := videoRegistry[Video(canonical)]; ok {
		return info.Demuxable
	}
	if info, ok := audioRegistry[Audio(canonical)]; ok {
		return info.Demuxable
	}
	return false
}

// Entry describes one registry row.
type Entry struct {
	Name      string   `json:"name" yaml:"name"`
	Kind      string   `json:"kind" yaml:"kind"`
	Encoder   string   `json:"encoder" yaml:"encoder"`
	LibavName string   `json:"libav_name" yaml:"libav_name"`
	Demuxable bool     `json:"mpegts" yaml:"mpegts"`
	Aliases   []string `json:"aliases" yaml:"aliases"`
}

// Entries returns the registry sorted by kind and name.
func Entries() []Entry {
	entries := make([]Entry, 0, len(videoRegistry)+len(audioRegistry))
	for _, info := range videoRegistry {
		entries = append(entries, Entry{
			Name: string(info.Name), Kind: "video", Encoder: info.Encoder,
			LibavName: info.LibavName, Demuxable: info.Demuxable, Aliases: info.Aliases,
		})
	}
	for _, info := range audioRegistry {
		entries = append(entries, Entry{
			Name: string(info.Name), Kind: "audio", Encoder: info.Encoder,
			LibavName: info.LibavName, Demuxable: info.Demuxable, Aliases: info.Aliases,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Extraction is the stream subset implied by an output path.
type Extraction int

// Extraction modes.
const (
	ExtractAll Extraction = iota
	ExtractAudioOnly
	ExtractVideoOnly
)

// String returns the extraction mode name.
func (e Extraction) String() string {
	switch e {
	case ExtractAudioOnly:
		return "audio-only"
	case ExtractVideoOnly:
		return "video-only"
	default:
		return "all"
	}
}

var (
	audioOnlyExtensions = map[string]bool{"mp3": true, "aac": true, "m4a": true, "wav": true}
	videoOnlyExtensions = map[string]bool{"h264": true, "h265": true, "hevc": true, "264": true, "265": true}
)

// Extension returns the lower-cased extension of url without the dot.
// Query strings and fragments are ignored.
func Extension(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	// Windows paths are common inputs; treat backslashes as separators.
	url = strings.ReplaceAll(url, "\\", "/")
	ext := path.Ext(url)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtractionFor infers which streams to retain from an output url.
func ExtractionFor(url string) Extraction {
	ext := Extension(url)
	switch {
	case audioOnlyExtensions[ext]:
		return ExtractAudioOnly
	case videoOnlyExtensions[ext]:
		return ExtractVideoOnly
	default:
		return ExtractAll
	}
}
