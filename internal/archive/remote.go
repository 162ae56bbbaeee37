package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/kebairia/walcheck/internal/logger"
)

// RemoteConfig describes how to reach the repository host.
type RemoteConfig struct {
	Host                  string
	Port                  int
	User                  string
	IdentityFile          string
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration

	// Credentials fetched from a secret store take precedence.
	PrivateKey []byte
	Passphrase string
	Password   string
}

// Remote lists archives over a single SSH/SFTP session.
type Remote struct {
	client *sftp.Client
	closer io.Closer
	agent  io.Closer
	log    logger.Logger
}

var _ Lister = (*Remote)(nil)

// DialRemote opens the one session a run uses. The caller must Close it.
func DialRemote(ctx context.Context, cfg RemoteConfig, log logger.Logger) (_ *Remote, err error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: no host given", ErrConnection)
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	setup, err := clientConfig(cfg, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() {
		if err != nil && setup.agent != nil {
			setup.agent.Close()
		}
	}()

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}
	if cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, setup.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: ssh handshake with %s: %v", ErrConnection, addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: start sftp on %s: %v", ErrConnection, addr, err)
	}
	log.Debug("remote session opened",
		"addr", addr,
		"user", setup.config.User,
		"auth", setup.auth,
		"host_key_algorithms", setup.config.HostKeyAlgorithms,
	)
	r := newRemote(client, sshClient, log)
	r.agent = setup.agent
	return r, nil
}

func newRemote(client *sftp.Client, closer io.Closer, log logger.Logger) *Remote {
	return &Remote{client: client, closer: closer, log: log}
}

// clientSetup is what one dial needs besides the TCP connection.
type clientSetup struct {
	config *ssh.ClientConfig
	// auth names the methods of config.Auth, in the order they are tried.
	auth []string
	// agent is the ssh-agent connection backing the "agent" method.
	agent io.Closer
}

func clientConfig(cfg RemoteConfig, addr string) (setup clientSetup, err error) {
	user := cfg.User
	if user == "" {
		user = os.Getenv("USER")
	}
	defer func() {
		if err != nil && setup.agent != nil {
			setup.agent.Close()
			setup.agent = nil
		}
	}()

	var auths []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		signer, err := parseKey(cfg.PrivateKey, cfg.Passphrase)
		if err != nil {
			return setup, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
		setup.auth = append(setup.auth, "private-key")
	}
	if cfg.Password != "" {
		auths = append(auths, ssh.Password(cfg.Password))
		setup.auth = append(setup.auth, "password")
	}
	if cfg.IdentityFile != "" {
		data, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return setup, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := parseKey(data, cfg.Passphrase)
		if err != nil {
			return setup, fmt.Errorf("parse identity file %s: %w", cfg.IdentityFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
		setup.auth = append(setup.auth, "identity-file")
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			setup.auth = append(setup.auth, "agent")
			setup.agent = conn
		}
	}
	if len(auths) == 0 {
		return setup, errors.New("no ssh authentication method available")
	}

	sshCfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}
	if !cfg.InsecureIgnoreHostKey {
		file := cfg.KnownHostsFile
		if file == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return setup, fmt.Errorf("locate known_hosts: %w", err)
			}
			file = path.Join(home, ".ssh", "known_hosts")
		}
		cb, err := knownhosts.New(file)
		if err != nil {
			return setup, fmt.Errorf("load known_hosts %s: %w", file, err)
		}
		sshCfg.HostKeyCallback = cb
		sshCfg.HostKeyAlgorithms = knownAlgorithms(cb, addr)
	}
	setup.config = sshCfg
	return setup, nil
}

// knownAlgorithms lists the host key algorithms known_hosts holds for addr,
// so the server is asked for a key type that can actually be verified. It
// returns nil for an unknown host, leaving the defaults in place.
func knownAlgorithms(cb ssh.HostKeyCallback, addr string) []string {
	remote := &net.TCPAddr{IP: net.IPv4zero}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			remote.IP = ip
		}
	}

	var keyErr *knownhosts.KeyError
	if err := cb(addr, remote, placeholderKey{}); !errors.As(err, &keyErr) {
		return nil
	}
	var algos []string
	seen := map[string]bool{}
	for _, known := range keyErr.Want {
		for _, algo := range algorithmsForKey(known.Key.Type()) {
			if !seen[algo] {
				seen[algo] = true
				algos = append(algos, algo)
			}
		}
	}
	return algos
}

// algorithmsForKey maps a key type onto the signature algorithms that
// verify with it.
func algorithmsForKey(keyType string) []string {
	switch keyType {
	case ssh.KeyAlgoRSA:
		return []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}
	}
	return []string{keyType}
}

// placeholderKey never matches a known_hosts line; checking it makes the
// callback report every key recorded for a host.
type placeholderKey struct{}

func (placeholderKey) Type() string                            { return "walcheck-placeholder" }
func (placeholderKey) Marshal() []byte                         { return []byte("walcheck-placeholder") }
func (placeholderKey) Verify(_ []byte, _ *ssh.Signature) error { return errors.New("placeholder key") }

func parseKey(pem []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pem)
}

// List walks dir on the remote host and stats every matching entry.
func (r *Remote) List(ctx context.Context, dir string, match *regexp.Regexp) ([]ArchivedFile, error) {
	var files []ArchivedFile
	walker := r.client.Walk(dir)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := walker.Err(); err != nil {
			if walker.Path() == dir && errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, dir, err)
			}
			return nil, fmt.Errorf("%w: walk %s: %v", ErrConnection, walker.Path(), err)
		}
		info := walker.Stat()
		if info.IsDir() || !match.MatchString(info.Name()) {
			continue
		}
		files = append(files, ArchivedFile{
			Name:    info.Name(),
			Path:    walker.Path(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	r.log.Debug("listed remote archives", "dir", dir, "count", len(files))
	return files, nil
}

// ReadFile reads a remote file. A missing file yields an error matching
// os.ErrNotExist.
func (r *Remote) ReadFile(_ context.Context, name string) ([]byte, error) {
	f, err := r.client.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConnection, name, err)
	}
	return data, nil
}

// Close releases the sftp client, the underlying connection and the
// ssh-agent connection, if any.
func (r *Remote) Close() error {
	err := r.client.Close()
	for _, c := range []io.Closer{r.closer, r.agent} {
		if c == nil {
			continue
		}
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	r.log.Debug("remote session closed")
	return err
}
