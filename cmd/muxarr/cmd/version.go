package cmd

import (
	"fmt"
	"io"
	"maps"
	"runtime/debug"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/muxarr/internal/config"
	"github.com/jmylchreest/muxarr/internal/version"
)

var versionOutput string

// backendModules are the modules behind each backend, reported by version.
var backendModules = map[string]string{
	config.BackendLibav:  "github.com/asticode/go-astiav",
	config.BackendMPEGTS: "github.com/bluenviron/mediacommon/v2",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit and build date of muxarr and the module versions of its backends.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.GetInfo()
		info.Backends = backendVersions()
		return render(cmd.OutOrStdout(), versionOutput, info, func(w io.Writer) error {
			fmt.Fprintln(w, version.String())
			for _, name := range slices.Sorted(maps.Keys(info.Backends)) {
				fmt.Fprintf(w, "  %s: %s\n", name, info.Backends[name])
			}
			return nil
		})
	},
}

func init() {
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", formatText, "output format (text, json, yaml)")
	rootCmd.AddCommand(versionCmd)
}

func backendVersions() map[string]string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, dep := range bi.Deps {
		for name, path := range backendModules {
			if dep.Path != path {
				continue
			}
			v := dep.Version
			if dep.Replace != nil {
				v = dep.Replace.Path + " " + dep.Replace.Version
			}
			out[name] = v
		}
	}
	return out
}
