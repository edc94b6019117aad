// Package libav is the FFmpeg media backend, built on go-astiav. It demuxes
// and muxes every container libavformat knows and opens libavcodec decoders
// and encoders for transcoding.
package libav

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/observability"
)

// Name is the backend name.
const Name = "libav"

// Backend implements media.Backend on libav.
type Backend struct {
	logger *slog.Logger
	codecs *codecs
}

// New returns the libav backend and bridges libav logging into logger.
// A nil logger uses slog.Default.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	Bridge(logger)
	l := observability.WithComponent(logger, Name)
	return &Backend{logger: l, codecs: &codecs{logger: l}}
}

// Name implements media.Backend.
func (b *Backend) Name() string { return Name }

// Codecs implements media.Backend.
func (b *Backend) Codecs() media.Codecs { return b.codecs }

// OpenInput implements media.Backend.
func (b *Backend) OpenInput(ctx context.Context, url string, opts media.InputOptions) (media.Input, error) {
	return openInput(ctx, url, opts, b.logger.With(slog.String("input", url)))
}

// CreateOutput implements media.Backend.
func (b *Backend) CreateOutput(url, format string) (media.Output, error) {
	return createOutput(url, format, b.logger.With(slog.String("output", url)))
}
