package cmd

import (
	"log/slog"

	"github.com/jmylchreest/muxarr/internal/config"
	"github.com/jmylchreest/muxarr/internal/libav"
	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/mpegts"
	"github.com/jmylchreest/muxarr/internal/remux"
)

// backendName resolves the configured backend for a session. "auto" picks
// the pure Go backend for MPEG-TS stream copy and libav for everything else.
func backendName(configured string, rc remux.Config) string {
	switch configured {
	case config.BackendLibav, config.BackendMPEGTS:
		return configured
	}
	if rc.Transcoding() {
		return config.BackendLibav
	}
	if rc.Format != "" && rc.Format != mpegts.FormatName {
		return config.BackendLibav
	}
	if mpegts.Handles(rc.InputURL) && mpegts.Handles(rc.OutputURL) {
		return config.BackendMPEGTS
	}
	return config.BackendLibav
}

func newBackend(name string, logger *slog.Logger) media.Backend {
	if name == config.BackendMPEGTS {
		return mpegts.New(logger)
	}
	return libav.New(logger)
}
