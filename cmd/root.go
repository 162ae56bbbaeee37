package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kebairia/walcheck/internal/archive"
	"github.com/kebairia/walcheck/internal/check"
	"github.com/kebairia/walcheck/internal/config"
	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/operations"
	"github.com/kebairia/walcheck/internal/status"
	"github.com/kebairia/walcheck/internal/units"
)

// Exit statuses for fatal errors. Check outcomes use check.Severity.ExitCode.
const (
	ExitUsage       = 64
	ExitUnavailable = 69
	ExitSoftware    = 70
	ExitFailure     = 1
)

var (
	// ConfigFile is the path to the optional YAML configuration.
	ConfigFile string
	// EnvFile is an optional dotenv file loaded before the environment is read.
	EnvFile string

	// rootCmd is the base command for walcheck.
	rootCmd = &cobra.Command{
		Use:   "walcheck",
		Short: "Monitor pgBackRest WAL archives and backup retention",
		Long: `walcheck inspects a pgBackRest stanza and reports, in a form suited to
monitoring systems, whether its WAL archive is continuous and fresh and
whether its backups satisfy a retention policy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	var outcome *checkOutcome
	if err != nil && !errors.As(err, &outcome) {
		fmt.Fprintf(os.Stderr, "walcheck: %v\n", err)
	}
	return exitStatus(err)
}

// checkOutcome carries a non-OK check severity out of RunE. The report has
// already been printed, so it is not a failure of the command itself.
type checkOutcome struct {
	severity check.Severity
}

func (o *checkOutcome) Error() string {
	return "check returned " + o.severity.String()
}

func exitStatus(err error) int {
	var outcome *checkOutcome
	switch {
	case err == nil:
		return 0
	case errors.As(err, &outcome):
		return outcome.severity.ExitCode()
	case errors.Is(err, units.ErrArgument),
		errors.Is(err, config.ErrLoadConfig),
		errors.Is(err, config.ErrValidateConfig):
		return ExitUsage
	case errors.Is(err, archive.ErrConnection):
		return ExitUnavailable
	case errors.Is(err, status.ErrExternalTool):
		return ExitSoftware
	}
	return ExitFailure
}

// runCheck runs the check named by the subcommand. A non-OK severity is
// returned as a *checkOutcome.
func runCheck(cmd *cobra.Command, _ []string) error {
	kind, err := check.ParseKind(cmd.Name())
	if err != nil {
		return err
	}
	if err := config.LoadEnvFile(EnvFile); err != nil {
		return err
	}
	var cfg config.Config
	if err := cfg.Load(ConfigFile, cmd.Flags()); err != nil {
		return err
	}
	settings, err := cfg.Settings(kind)
	if err != nil {
		return err
	}

	base, err := logger.Init(settings.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", units.ErrArgument, err)
	}
	defer func() { _ = base.Sync() }()
	log := base.With("run_id", uuid.NewString()[:8], "stanza", settings.Stanza)
	log.Debug("configuration loaded", "config", ConfigFile, "check", kind.String(), "remote", settings.Remote())

	sev, err := operations.NewOperationManager(settings, log).Run(cmd.Context(), kind, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if sev != check.OK {
		return &checkOutcome{severity: sev}
	}
	return nil
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", units.ErrArgument, err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")
	pf.StringVar(&EnvFile, "env-file", "", "path to a dotenv file loaded before the environment")
	pf.StringP("stanza", "s", "", "pgBackRest stanza to check")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringP("output", "o", "nagios", "report format (nagios, human, json)")
	pf.String("prometheus-textfile", "", "also write metrics to this node-exporter textfile")

	pf.String("pgbackrest-bin", "pgbackrest", "pgbackrest executable")
	pf.String("pgbackrest-config", "", "pgbackrest configuration file")
	pf.Duration("pgbackrest-timeout", 0, "timeout of the pgbackrest info call")

	pf.String("repo-path", "", "repository path (default /var/lib/pgbackrest)")
	pf.String("repo-host", "", "list archives on this host over SSH")
	pf.String("repo-host-user", "", "SSH user on the repository host")
	pf.Int("repo-host-port", 22, "SSH port on the repository host")
	pf.String("identity-file", "", "SSH private key file")
	pf.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	pf.Bool("insecure-ignore-host-key", false, "do not verify the repository host key")
	pf.Duration("ssh-timeout", 0, "SSH connection timeout")

	pf.String("vault-address", "", "Vault address")
	pf.String("vault-ssh-secret", "", "Vault path holding the SSH credentials")

	rootCmd.AddCommand(archivesCmd)
	rootCmd.AddCommand(retentionCmd)
}
