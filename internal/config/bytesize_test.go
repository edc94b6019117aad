package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"5KB", 5000, false},
		{"5KiB", 5 * 1024, false},
		{" 32MiB ", 32 * 1024 * 1024, false},
		{"5 mb", 5000000, false},
		{"0", 0, false},
		{"lots", 0, true},
		{"", 0, true},
		{"   ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteSize_TextRoundTrip(t *testing.T) {
	for _, size := range []ByteSize{0, 500, 5000000, 10 * 1000 * 1000} {
		text, err := size.MarshalText()
		require.NoError(t, err)

		var back ByteSize
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, size, back, string(text))
	}
}

func TestByteSize_String(t *testing.T) {
	assert.Equal(t, "500 B", ByteSize(500).String())
	assert.Equal(t, "5.0 MB", ByteSize(5000000).String())
	assert.Equal(t, "-1.0 kB", ByteSize(-1000).String())
}

func TestByteSize_FromEnvironment(t *testing.T) {
	t.Setenv("MUXARR_INPUT_PROBE_SIZE", "2MiB")
	t.Setenv("MUXARR_INPUT_ANALYZE_DURATION", "750ms")

	cfg, err := LoadWith(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), cfg.Input.ProbeSize.Bytes())
	assert.Equal(t, 750*time.Millisecond, cfg.Input.AnalyzeDuration)
}
