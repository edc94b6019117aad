package libav

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/observability"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError("read", nil))
	assert.ErrorIs(t, wrapError("read", astiav.ErrEof), io.EOF)
	assert.ErrorIs(t, wrapError("decode", astiav.ErrEagain), media.ErrAgain)

	err := wrapError("decode", astiav.ErrInvaliddata)
	code, ok := media.ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, int(astiav.ErrInvaliddata), code)

	plain := errors.New("boom")
	assert.ErrorIs(t, wrapError("open", plain), plain)
}

func TestNotFound(t *testing.T) {
	err := notFound("find encoder", "nope", astiav.ErrEncoderNotFound)
	code, ok := media.ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, int(astiav.ErrEncoderNotFound), code)
	assert.Contains(t, err.Error(), "nope")
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   astiav.LogLevel
		want slog.Level
	}{
		{astiav.LogLevelFatal, slog.LevelError},
		{astiav.LogLevelError, slog.LevelError},
		{astiav.LogLevelWarning, slog.LevelWarn},
		{astiav.LogLevelInfo, slog.LevelInfo},
		{astiav.LogLevelVerbose, slog.LevelDebug},
		{astiav.LogLevelDebug, observability.LevelTrace},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slogLevel(tt.in), "level %d", tt.in)
	}
}

func TestLibavLevel(t *testing.T) {
	newLogger := func(level slog.Level) *slog.Logger {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level}))
	}
	assert.Equal(t, astiav.LogLevelDebug, libavLevel(newLogger(observability.LevelTrace)))
	assert.Equal(t, astiav.LogLevelVerbose, libavLevel(newLogger(slog.LevelDebug)))
	assert.Equal(t, astiav.LogLevelInfo, libavLevel(newLogger(slog.LevelInfo)))
	assert.Equal(t, astiav.LogLevelWarning, libavLevel(newLogger(slog.LevelWarn)))
	assert.Equal(t, astiav.LogLevelError, libavLevel(newLogger(slog.LevelError)))
}

func TestCodecIDs_RoundTrip(t *testing.T) {
	for name, id := range codecIDs {
		assert.Equal(t, name, canonicalID(id), "codec %s", name)
	}
}

func TestLibavCodecID_Aliases(t *testing.T) {
	id, ok := libavCodecID("hevc")
	require.True(t, ok)
	assert.Equal(t, astiav.CodecIDHevc, id)

	_, ok = libavCodecID("definitely-not-a-codec")
	assert.False(t, ok)
}

func TestMediaType_RoundTrip(t *testing.T) {
	for _, mt := range []media.MediaType{media.MediaTypeVideo, media.MediaTypeAudio, media.MediaTypeSubtitle, media.MediaTypeData} {
		assert.Equal(t, mt, mediaType(libavMediaType(mt)))
	}
}

func TestRational(t *testing.T) {
	r := media.NewRational(1001, 30000)
	assert.Equal(t, r, rational(libavRational(r)))
}

func TestFormats(t *testing.T) {
	sf, ok := sampleFormat("fltp")
	require.True(t, ok)
	assert.Equal(t, astiav.SampleFormatFltp, sf)
	_, ok = sampleFormat("bogus")
	assert.False(t, ok)

	pf, ok := pixelFormat("yuv420p")
	require.True(t, ok)
	assert.Equal(t, astiav.PixelFormatYuv420P, pf)
	_, ok = pixelFormat("bogus")
	assert.False(t, ok)
}

func TestChannelLayout(t *testing.T) {
	assert.Equal(t, 1, channelLayout(1).Channels())
	assert.Equal(t, 2, channelLayout(2).Channels())
	assert.Equal(t, 6, channelLayout(6).Channels())
	assert.Equal(t, 2, channelLayout(0).Channels())
}

func TestPacketConversion(t *testing.T) {
	p := &media.Packet{StreamIndex: 1, PTS: 3600, DTS: 1800, Duration: 3600, Pos: -1, Keyframe: true, Data: []byte{0, 0, 1, 9}}
	pkt, err := toPacket(p)
	require.NoError(t, err)
	defer pkt.Free()

	back := fromPacket(pkt)
	assert.Equal(t, p.StreamIndex, back.StreamIndex)
	assert.Equal(t, p.PTS, back.PTS)
	assert.Equal(t, p.DTS, back.DTS)
	assert.Equal(t, p.Duration, back.Duration)
	assert.True(t, back.Keyframe)
	assert.Equal(t, p.Data, back.Data)
}

func TestInputDictionary(t *testing.T) {
	d, err := inputDictionary(media.InputOptions{})
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = inputDictionary(media.InputOptions{ProbeSize: 5000000, AnalyzeDuration: 2000000})
	require.NoError(t, err)
	require.NotNil(t, d)
	defer d.Free()

	flags := astiav.NewDictionaryFlags()
	e := d.Get("probesize", nil, flags)
	require.NotNil(t, e)
	assert.Equal(t, "5000000", e.Value())
	e = d.Get("analyzeduration", nil, flags)
	require.NotNil(t, e)
	assert.Equal(t, "2000000", e.Value())
}
