package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/muxarr/internal/codec"
)

var (
	codecsKind   string
	codecsOutput string
)

var codecsCmd = &cobra.Command{
	Use:   "codecs",
	Short: "List known codecs and their default encoders",
	Long: `Print the codec registry: canonical name, kind, the encoder used when a
run names the codec instead of an encoder, the libav codec name, whether the
pure Go MPEG-TS backend can carry it, and the accepted aliases.`,
	Args: cobra.NoArgs,
	RunE: runCodecs,
}

func init() {
	rootCmd.AddCommand(codecsCmd)
	codecsCmd.Flags().StringVar(&codecsKind, "kind", "", "only list video or audio codecs")
	codecsCmd.Flags().StringVarP(&codecsOutput, "output", "o", formatText, "output format (text, json, yaml)")
}

func filterEntries(entries []codec.Entry, kind string) ([]codec.Entry, error) {
	kind = strings.ToLower(kind)
	switch kind {
	case "":
		return entries, nil
	case "video", "audio":
	default:
		return nil, fmt.Errorf("unknown codec kind %q (want video or audio)", kind)
	}
	out := make([]codec.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func runCodecs(cmd *cobra.Command, _ []string) error {
	entries, err := filterEntries(codec.Entries(), codecsKind)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), codecsOutput, entries, func(w io.Writer) error {
		tw := newTable(w)
		fmt.Fprintln(tw, "NAME\tKIND\tENCODER\tLIBAV\tMPEGTS\tALIASES")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				e.Name, e.Kind, e.Encoder, e.LibavName, e.Demuxable, strings.Join(e.Aliases, ","))
		}
		return tw.Flush()
	})
}
