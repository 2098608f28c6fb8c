package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sparrowcam/internal/archive"
)

func newArchivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List archived clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := archive.List(loadSettings().ArchiveDir)
			if err != nil {
				return err
			}
			renderArchives(cmd.OutOrStdout(), entries, time.Now())
			return nil
		},
	}
}

func renderArchives(w io.Writer, entries []archive.Entry, now time.Time) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Created", "Age", "Prefix", "Segments", "Size", "Name"})

	var total int64
	for _, e := range entries {
		total += e.Bytes
		tbl.AppendRow(table.Row{
			e.Created.Format(time.RFC3339),
			humanize.RelTime(e.Created, now, "ago", "from now"),
			e.Prefix,
			e.Segments,
			humanize.Bytes(uint64(e.Bytes)),
			e.Name,
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(entries)), "", "", "", humanize.Bytes(uint64(total)), ""})
	tbl.Render()
}
