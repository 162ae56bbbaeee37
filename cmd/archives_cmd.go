package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/walcheck/internal/check"
)

var archivesCmd = &cobra.Command{
	Use:   check.KindArchives.String(),
	Short: "Check that the WAL archive is continuous and fresh",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	f := archivesCmd.Flags()
	f.String("max-archives-age", "", "alert when the newest archived WAL is older than this (e.g. 1h)")
	f.String("ignore-archived-since", "", "skip WAL archived during this last interval")
	f.String("wal-segsize", "", "WAL segment size (default 16MB)")
	f.String("wal-size", "", "WAL file size (default 4GB)")
}
