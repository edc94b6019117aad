package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/muxarr/internal/codec"
	"github.com/jmylchreest/muxarr/internal/media"
	"github.com/jmylchreest/muxarr/internal/observability"
	"github.com/jmylchreest/muxarr/internal/remux"
)

var (
	probeForOutput string
	probeOutput    string
)

var probeCmd = &cobra.Command{
	Use:   "probe <input>",
	Short: "List the streams of an input",
	Long: `Open the input, probe its streams and print them.

With --for-output, each stream is marked with whether a run into that output
path would keep it.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeForOutput, "for-output", "", "show which streams an output with this path would retain")
	probeCmd.Flags().StringVarP(&probeOutput, "output", "o", formatText, "output format (text, json, yaml)")
}

type probeStream struct {
	Index        int    `json:"index" yaml:"index"`
	Type         string `json:"type" yaml:"type"`
	Codec        string `json:"codec" yaml:"codec"`
	TimeBase     string `json:"time_base" yaml:"time_base"`
	FrameRate    string `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	Width        int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height       int    `json:"height,omitempty" yaml:"height,omitempty"`
	PixelFormat  string `json:"pixel_format,omitempty" yaml:"pixel_format,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty" yaml:"channels,omitempty"`
	SampleFormat string `json:"sample_format,omitempty" yaml:"sample_format,omitempty"`
	BitRate      int64  `json:"bit_rate,omitempty" yaml:"bit_rate,omitempty"`
	MPEGTS       bool   `json:"mpegts" yaml:"mpegts"`
	Retained     *bool  `json:"retained,omitempty" yaml:"retained,omitempty"`
}

type probeResult struct {
	Input      string        `json:"input" yaml:"input"`
	Backend    string        `json:"backend" yaml:"backend"`
	Output     string        `json:"output,omitempty" yaml:"output,omitempty"`
	Extraction string        `json:"extraction,omitempty" yaml:"extraction,omitempty"`
	Streams    []probeStream `json:"streams" yaml:"streams"`
}

// describeStreams converts probed streams, marking retention when
// forOutput is set.
func describeStreams(streams []media.Stream, forOutput string) []probeStream {
	mode := codec.ExtractionFor(forOutput)
	out := make([]probeStream, 0, len(streams))
	for _, s := range streams {
		ps := probeStream{
			Index:    s.Index,
			Type:     s.Codec.MediaType.String(),
			Codec:    string(s.Codec.CodecID),
			TimeBase: s.TimeBase.String(),
			BitRate:  s.Codec.BitRate,
			MPEGTS:   codec.IsMediacommonCodecSupported(string(s.Codec.CodecID)),
		}
		switch s.Codec.MediaType {
		case media.MediaTypeVideo:
			ps.Width = s.Codec.Width
			ps.Height = s.Codec.Height
			ps.PixelFormat = s.Codec.PixelFormat
			if !s.FrameRate.IsZero() {
				ps.FrameRate = s.FrameRate.String()
			}
		case media.MediaTypeAudio:
			ps.SampleRate = s.Codec.SampleRate
			ps.Channels = s.Codec.Channels
			ps.SampleFormat = s.Codec.SampleFormat
		}
		if forOutput != "" {
			retained := remux.Retains(mode, s.Codec.MediaType)
			ps.Retained = &retained
		}
		out = append(out, ps)
	}
	return out
}

func runProbe(cmd *cobra.Command, args []string) error {
	input := args[0]
	logger := slog.Default()

	// Any output path works for selection; probing only needs an input.
	name := backendName(appConfig.Session.Backend, remux.Config{InputURL: input, OutputURL: input})
	backend := newBackend(name, logger)

	rc := sessionConfig(appConfig, input, "", "", "")
	in, err := backend.OpenInput(cmd.Context(), input, rc.Input)
	if err != nil {
		return &statusError{status: remux.Status(err), err: fmt.Errorf("opening %s: %w", observability.RedactURL(input), err)}
	}
	defer in.Close()

	result := probeResult{
		Input:   observability.RedactURL(input),
		Backend: name,
		Streams: describeStreams(in.Streams(), probeForOutput),
	}
	if probeForOutput != "" {
		result.Output = probeForOutput
		result.Extraction = codec.ExtractionFor(probeForOutput).String()
	}
	return render(cmd.OutOrStdout(), probeOutput, result, result.writeText)
}

func (r probeResult) writeText(w io.Writer) error {
	fmt.Fprintf(w, "Input: %s (%s)\n", r.Input, r.Backend)
	if r.Output != "" {
		fmt.Fprintf(w, "Output: %s (%s)\n", r.Output, r.Extraction)
	}
	tw := newTable(w)
	header := "INDEX\tTYPE\tCODEC\tTIME BASE\tDETAILS\tMPEGTS"
	if r.Output != "" {
		header += "\tRETAINED"
	}
	fmt.Fprintln(tw, header)
	for _, s := range r.Streams {
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%t", s.Index, s.Type, s.Codec, s.TimeBase, s.details(), s.MPEGTS)
		if s.Retained != nil {
			line += fmt.Sprintf("\t%t", *s.Retained)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func (s probeStream) details() string {
	var parts []string
	switch {
	case s.Width > 0 || s.Height > 0:
		parts = append(parts, fmt.Sprintf("%dx%d", s.Width, s.Height))
		if s.PixelFormat != "" {
			parts = append(parts, s.PixelFormat)
		}
		if s.FrameRate != "" {
			parts = append(parts, s.FrameRate+" fps")
		}
	case s.SampleRate > 0 || s.Channels > 0:
		parts = append(parts, fmt.Sprintf("%d Hz", s.SampleRate), fmt.Sprintf("%d ch", s.Channels))
		if s.SampleFormat != "" {
			parts = append(parts, s.SampleFormat)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
