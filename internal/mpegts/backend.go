// Package mpegts is a pure-Go media backend for MPEG-TS files built on
// mediacommon. It demuxes and muxes H.264, H.265, AAC, AC-3, E-AC-3, MP3 and
// Opus tracks. It has no codecs, so sessions using it can only copy streams.
package mpegts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/observability"
)

// FormatName is the container name accepted as a format override.
const FormatName = "mpegts"

// ioBufferSize is the read and write buffer size, a multiple of the TS packet size.
const ioBufferSize = 188 * 1024

// ErrUnsupportedFormat is returned for inputs or outputs that are not MPEG-TS.
var ErrUnsupportedFormat = errors.New("not an MPEG-TS container")

var tsExtensions = map[string]bool{"ts": true, "m2ts": true, "mts": true}

// Backend implements media.Backend for MPEG-TS files.
type Backend struct {
	logger *slog.Logger
}

// New returns the MPEG-TS backend. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: observability.WithComponent(logger, "mpegts")}
}

// Name implements media.Backend.
func (b *Backend) Name() string { return FormatName }

// Codecs implements media.Backend. The backend cannot decode or encode.
func (b *Backend) Codecs() media.Codecs { return nil }

// Handles reports whether url names an MPEG-TS file, judged by extension.
func Handles(url string) bool {
	return tsExtensions[codec.Extension(url)]
}

// OpenInput opens url and reads until the program tables have been parsed.
func (b *Backend) OpenInput(ctx context.Context, url string, opts media.InputOptions) (media.Input, error) {
	if opts.Format != "" && opts.Format != FormatName {
		return nil, fmt.Errorf("input format %q: %w", opts.Format, ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filePath(url))
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}

	in := newInput(bufio.NewReaderSize(f, ioBufferSize), f, b.logger.With(slog.String("input", url)))
	if err := in.initialize(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return in, nil
}

// CreateOutput allocates an MPEG-TS output. format, when set, must be "mpegts";
// otherwise url must carry a TS extension.
func (b *Backend) CreateOutput(url, format string) (media.Output, error) {
	switch {
	case format == FormatName:
	case format != "":
		return nil, fmt.Errorf("output format %q: %w", format, ErrUnsupportedFormat)
	case !Handles(url):
		return nil, fmt.Errorf("output %q: %w", url, ErrUnsupportedFormat)
	}
	return newOutput(filePath(url), b.logger.With(slog.String("output", url))), nil
}

// filePath strips a file: scheme.
func filePath(url string) string {
	if p, ok := strings.CutPrefix(url, "file://"); ok {
		return p
	}
	if p, ok := strings.CutPrefix(url, "file:"); ok {
		return p
	}
	return url
}
