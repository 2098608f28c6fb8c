package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sparrowcam/internal/platform/config"
)

func main() {
	_ = config.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sparrowcam",
		Short:        "Watch a live HLS stream for birds and archive the sightings",
		SilenceUsage: true,
	}
	root.AddCommand(newWatchCmd(), newArchiveCmd(), newArchivesCmd())
	return root
}
