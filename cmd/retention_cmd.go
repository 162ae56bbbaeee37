package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/walcheck/internal/check"
)

var retentionCmd = &cobra.Command{
	Use:   check.KindRetention.String(),
	Short: "Check the number and age of backups",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	f := retentionCmd.Flags()
	f.Int("retention-full", 0, "minimum number of full backups")
	f.String("retention-age", "", "maximum age of the latest backup (e.g. 1d)")
}
