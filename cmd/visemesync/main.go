// Command visemesync serves the viseme synchronisation engine over HTTP and
// previews text timelines from the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "visemesync",
		Short:         "Drive avatar mouth shapes from live audio or text",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")
	root.AddCommand(newServeCmd(), newTimelineCmd())
	return root
}
