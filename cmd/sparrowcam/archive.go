package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sparrowcam/internal/platform/logger"
	"sparrowcam/internal/scheduler"
)

const manualPrefix = "manual"

func newArchiveCmd() *cobra.Command {
	var limitFlag string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive the current live stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := parseLimit(limitFlag)
			if err != nil {
				return err
			}
			s := loadSettings()
			res, err := s.newArchiver(logger.NewWithOptions(s.Log)).Archive(limit, manualPrefix, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d segments)\n", res.Path, res.Segments)
			return nil
		},
	}
	cmd.Flags().StringVar(&limitFlag, "limit", strconv.Itoa(scheduler.DefaultCount),
		`maximum number of segments to keep, or "none" for all`)
	return cmd
}

// parseLimit accepts an integer, or "none"/"" for no limit. Range checks are
// left to the archiver so the message matches the pipeline's.
func parseLimit(v string) (*int, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "none") {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid limit %q, expected integer or none", v)
	}
	return &n, nil
}
