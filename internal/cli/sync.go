package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncDay string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single feed sync pass",
	Long:  "Ingests the one-day feed window ending at the given day for every watch-listed currency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		day := time.Now().UTC()
		if syncDay != "" {
			parsed, err := time.Parse("2006-01-02", syncDay)
			if err != nil {
				return fmt.Errorf("invalid --day value: %w", err)
			}
			day = parsed
		}
		return getApp().Sync(cmd.Context(), day)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncDay, "day", "", "Window end date (YYYY-MM-DD, defaults to today)")
}
