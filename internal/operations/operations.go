package operations

import (
	"context"
	"fmt"
	"io"

	"github.com/kebairia/walcheck/internal/archive"
	"github.com/kebairia/walcheck/internal/check"
	"github.com/kebairia/walcheck/internal/config"
	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/report"
	"github.com/kebairia/walcheck/internal/status"
	"github.com/kebairia/walcheck/internal/vault"
)

// OperationManager builds and runs checks from validated settings.
type OperationManager struct {
	settings config.Settings
	provider status.Provider
	log      logger.Logger
	opts     []check.Option
}

// ManagerOption overrides collaborators, mainly for tests.
type ManagerOption func(*OperationManager)

// WithProvider replaces the pgbackrest status provider.
func WithProvider(p status.Provider) ManagerOption {
	return func(om *OperationManager) {
		if p != nil {
			om.provider = p
		}
	}
}

// WithCheckOptions forwards options to every check built.
func WithCheckOptions(opts ...check.Option) ManagerOption {
	return func(om *OperationManager) {
		om.opts = append(om.opts, opts...)
	}
}

// NewOperationManager wires the collaborators described by settings.
func NewOperationManager(settings config.Settings, log logger.Logger, opts ...ManagerOption) *OperationManager {
	om := &OperationManager{
		settings: settings,
		log:      log,
		provider: status.NewPgbackrest(log,
			status.WithBin(settings.Pgbackrest.Bin),
			status.WithConfigFile(settings.Pgbackrest.Config),
			status.WithTimeout(settings.Pgbackrest.Timeout),
		),
	}
	for _, opt := range opts {
		opt(om)
	}
	return om
}

// Check returns the check of the given kind.
func (om *OperationManager) Check(kind check.Kind) (check.Check, error) {
	switch kind {
	case check.KindArchives:
		return check.NewArchives(om.settings.Archives, om.provider, om.listerFactory(), om.log, om.opts...), nil
	case check.KindRetention:
		r, err := check.NewRetention(om.settings.Stanza, om.settings.Retention, om.provider, om.log, om.opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", check.ErrArgument, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: unknown check %s", check.ErrArgument, kind)
}

// listerFactory picks the local or remote strategy once.
func (om *OperationManager) listerFactory() check.ListerFactory {
	if !om.settings.Remote() {
		return func(context.Context) (archive.Lister, error) {
			return archive.NewLocal(om.log), nil
		}
	}
	return func(ctx context.Context) (archive.Lister, error) {
		cfg, err := om.remoteConfig(ctx)
		if err != nil {
			return nil, err
		}
		return archive.DialRemote(ctx, cfg, om.log)
	}
}

func (om *OperationManager) remoteConfig(ctx context.Context) (archive.RemoteConfig, error) {
	repo := om.settings.Repo
	cfg := archive.RemoteConfig{
		Host:                  repo.Host,
		Port:                  repo.Port,
		User:                  repo.User,
		IdentityFile:          repo.IdentityFile,
		KnownHostsFile:        repo.KnownHosts,
		InsecureIgnoreHostKey: repo.InsecureIgnoreHostKey,
		Timeout:               repo.Timeout,
	}
	if om.settings.Vault.SSHSecret == "" {
		return cfg, nil
	}

	vc, err := vault.NewClient(ctx,
		vault.WithAddress(om.settings.Vault.Address),
		vault.WithToken(om.settings.Vault.Token),
		vault.WithAppRole(om.settings.Vault.RoleID, om.settings.Vault.RoleName),
	)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", archive.ErrConnection, err)
	}
	creds, err := vc.GetSSHCredentials(ctx, om.settings.Vault.SSHSecret)
	if err != nil {
		return cfg, fmt.Errorf("%w: ssh credentials: %v", archive.ErrConnection, err)
	}
	om.log.Debug("ssh credentials loaded from vault", "path", om.settings.Vault.SSHSecret)

	if creds.Username != "" && cfg.User == "" {
		cfg.User = creds.Username
	}
	cfg.PrivateKey = []byte(creds.PrivateKey)
	cfg.Passphrase = creds.Passphrase
	cfg.Password = creds.Password
	return cfg, nil
}

// Run executes the check of the given kind, writes the report to w and,
// when configured, the Prometheus textfile. It returns the severity so the
// caller can pick the exit status.
func (om *OperationManager) Run(ctx context.Context, kind check.Kind, w io.Writer) (check.Severity, error) {
	c, err := om.Check(kind)
	if err != nil {
		return check.Unknown, err
	}
	res, err := c.Run(ctx)
	if err != nil {
		om.log.Error("check failed", "check", kind.String(), "error", err)
		return check.Unknown, err
	}
	if err := report.Render(w, om.settings.Format, kind, res); err != nil {
		return check.Unknown, fmt.Errorf("render report: %w", err)
	}
	if path := om.settings.PrometheusTextfile; path != "" {
		if err := report.WriteTextfile(path, kind, om.settings.Stanza, res); err != nil {
			om.log.Warn("writing prometheus textfile failed", "path", path, "error", err)
		}
	}
	om.log.Info("check completed", "check", kind.String(), "severity", res.Severity.String())
	return res.Severity, nil
}
