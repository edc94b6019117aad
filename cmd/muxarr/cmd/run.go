package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/config"
	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/observability"
	"github.com/jmylchreest/muxarr/internal/remux"
)

var (
	runAudioEncoder string
	runVideoEncoder string
	runStats        bool
	runOutput       string
)

var runCmd = &cobra.Command{
	Use:   "run <input> <output>",
	Short: "Remux input into output",
	Long: `Copy every retained stream of the input into the output container.

The output extension selects which streams are kept: audio-only containers
(.mp3, .aac, .m4a, ...) keep audio, video-only ones keep video, everything
else keeps all streams. Passing --audio-encoder or --video-encoder re-encodes
streams of that type instead of copying them.

The first SIGINT or SIGTERM drains the session: no new packets are read and
the output is finalized normally. A second signal stops it immediately.`,
	Example: `  muxarr run input.ts output.mkv
  muxarr run --video-encoder libx264 --audio-encoder aac input.mkv output.mp4
  muxarr run --backend mpegts --stats input.ts copy.ts`,
	Args: cobra.MaximumNArgs(2),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runAudioEncoder, "audio-encoder", "", "encoder for audio streams (empty copies them)")
	runCmd.Flags().StringVar(&runVideoEncoder, "video-encoder", "", "encoder for video streams (empty copies them)")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "print session and process statistics when done")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", formatText, "statistics format (text, json, yaml)")

	runCmd.Flags().String("backend", config.BackendAuto, "media backend (auto, libav, mpegts)")
	runCmd.Flags().String("format", "", "output container format, overriding the extension")
	runCmd.Flags().Int("queue-size", remux.DefaultQueueSize, "capacity of each pipeline queue")

	mustBindPFlag("session.backend", runCmd.Flags().Lookup("backend"))
	mustBindPFlag("session.format", runCmd.Flags().Lookup("format"))
	mustBindPFlag("session.queue_size", runCmd.Flags().Lookup("queue-size"))
}

// sessionConfig builds the immutable session description from configuration.
func sessionConfig(cfg *config.Config, input, output, audioEncoder, videoEncoder string) remux.Config {
	return remux.Config{
		InputURL:     input,
		OutputURL:    output,
		Format:       cfg.Session.Format,
		AudioEncoder: audioEncoder,
		VideoEncoder: videoEncoder,
		QueueSize:    cfg.Session.QueueSize,
		PollInterval: cfg.Session.PollInterval,
		Input: media.InputOptions{
			ProbeSize:       cfg.Input.ProbeSize.Bytes(),
			AnalyzeDuration: cfg.Input.AnalyzeDuration.Microseconds(),
		},
		Encoding: remux.Encoding{
			AudioBitRate: cfg.Encoding.AudioBitRate,
			VideoBitRate: cfg.Encoding.VideoBitRate,
			GOPSize:      cfg.Encoding.GOPSize,
			MaxBFrames:   cfg.Encoding.MaxBFrames,
			Preset:       cfg.Encoding.Preset,
			SampleFormat: cfg.Encoding.DefaultSampleFormat,
			PixelFormat:  cfg.Encoding.DefaultPixelFormat,
		},
	}
}

// encoderName lets --audio-encoder and --video-encoder take a codec name
// ("h264", "opus") in place of an encoder, resolving it to the codec's
// default encoder. Encoder names and unknown names pass through.
func encoderName(name string, mt media.MediaType) string {
	if name == "" || codec.IsEncoder(name) {
		return name
	}
	switch mt {
	case media.MediaTypeVideo:
		if v, ok := codec.ParseVideo(name); ok {
			return codec.DefaultVideoEncoder(v)
		}
	case media.MediaTypeAudio:
		if a, ok := codec.ParseAudio(name); ok {
			return codec.DefaultAudioEncoder(a)
		}
	}
	return name
}

// tracePackets logs every packet when trace logging is enabled.
func tracePackets(rc *remux.Config, logger *slog.Logger) {
	if !logger.Enabled(context.Background(), observability.LevelTrace) {
		return
	}
	observer := func(direction string) remux.PacketObserver {
		return func(p *media.Packet) {
			logger.Log(context.Background(), observability.LevelTrace, "packet",
				slog.String("direction", direction),
				slog.Int("stream", p.StreamIndex),
				slog.Int64("pts", p.PTS),
				slog.Int64("dts", p.DTS),
				slog.Int("size", len(p.Data)),
				slog.Bool("keyframe", p.Keyframe))
		}
	}
	rc.OnInputPacket = observer("in")
	rc.OnOutputPacket = observer("out")
}

func runRun(cmd *cobra.Command, args []string) error {
	var input, output string
	if len(args) > 0 {
		input = args[0]
	}
	if len(args) > 1 {
		output = args[1]
	}

	logger := slog.Default()
	audioEncoder := encoderName(runAudioEncoder, media.MediaTypeAudio)
	videoEncoder := encoderName(runVideoEncoder, media.MediaTypeVideo)
	rc := sessionConfig(appConfig, input, output, audioEncoder, videoEncoder)
	tracePackets(&rc, logger)

	name := backendName(appConfig.Session.Backend, rc)
	logger.Debug("backend selected", slog.String("backend", name))
	session := remux.NewSession(newBackend(name, logger), rc, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleSignals(ctx, session, logger)

	err := session.Run(ctx)
	status := remux.Status(err)

	if runStats {
		summary := newRunSummary(session.Stats(), status, err)
		if rerr := render(cmd.OutOrStdout(), runOutput, summary, summary.writeText); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return &statusError{status: status, err: fmt.Errorf("session %s: %w", session.ID(), err)}
	}
	return nil
}

// handleSignals drains the session on the first signal and stops it on the
// second.
func handleSignals(ctx context.Context, session *remux.Session, logger *slog.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	drained := false
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if !drained {
				logger.Info("draining session", slog.String("signal", sig.String()))
				session.Drain()
				drained = true
				continue
			}
			logger.Warn("stopping session", slog.String("signal", sig.String()))
			session.Stop()
			return
		}
	}
}

// processStats is the process resource usage after a session.
type processStats struct {
	CPUUser   float64 `json:"cpu_user_seconds" yaml:"cpu_user_seconds"`
	CPUSystem float64 `json:"cpu_system_seconds" yaml:"cpu_system_seconds"`
	RSS       uint64  `json:"rss_bytes" yaml:"rss_bytes"`
}

func collectProcessStats() (*processStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspecting process: %w", err)
	}
	stats := &processStats{}
	if times, err := proc.Times(); err == nil && times != nil {
		stats.CPUUser = times.User
		stats.CPUSystem = times.System
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSS = mem.RSS
	}
	return stats, nil
}

type runSummary struct {
	remux.Stats `yaml:",inline"`
	Status  int           `json:"status" yaml:"status"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
	Process *processStats `json:"process,omitempty" yaml:"process,omitempty"`
}

func newRunSummary(stats remux.Stats, status int, err error) runSummary {
	s := runSummary{Stats: stats, Status: status}
	if err != nil {
		s.Error = err.Error()
	}
	if ps, perr := collectProcessStats(); perr == nil {
		s.Process = ps
	} else {
		slog.Debug("process statistics unavailable", slog.String("error", perr.Error()))
	}
	return s
}

func (s runSummary) writeText(w io.Writer) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Session:\t%s\n", s.SessionID)
	fmt.Fprintf(tw, "Mode:\t%s\n", s.Mode)
	fmt.Fprintf(tw, "Streams:\t%d\n", s.Streams)
	fmt.Fprintf(tw, "Packets read:\t%s\n", humanize.Comma(s.PacketsRead))
	fmt.Fprintf(tw, "Packets dropped:\t%s\n", humanize.Comma(s.PacketsDropped))
	fmt.Fprintf(tw, "Packets written:\t%s\n", humanize.Comma(s.PacketsWritten))
	if s.Mode == remux.ModeTranscode {
		fmt.Fprintf(tw, "Frames decoded:\t%s\n", humanize.Comma(s.FramesDecoded))
		fmt.Fprintf(tw, "Packets encoded:\t%s\n", humanize.Comma(s.PacketsEncoded))
	}
	fmt.Fprintf(tw, "Duration:\t%s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(tw, "Status:\t%d\n", s.Status)
	if s.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", s.Error)
	}
	if s.Process != nil {
		fmt.Fprintf(tw, "CPU:\t%.2fs user, %.2fs system\n", s.Process.CPUUser, s.Process.CPUSystem)
		fmt.Fprintf(tw, "Memory:\t%s RSS\n", humanize.Bytes(s.Process.RSS))
	}
	return tw.Flush()
}
