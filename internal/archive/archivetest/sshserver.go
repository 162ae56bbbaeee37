// Package archivetest runs an in-process SSH server exposing the local
// filesystem over SFTP, for tests of remote archive listing.
package archivetest

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ServerConfig describes who may log in and which host keys are offered.
type ServerConfig struct {
	User          string
	Password      string
	AuthorizedKey ssh.PublicKey
	HostKeys      []ssh.Signer
}

// SSHServer listens on 127.0.0.1 until the test ends.
type SSHServer struct {
	Addr string
	Host string
	Port int
}

// NewSSHServer starts a server accepting cfg.User with cfg.Password or
// cfg.AuthorizedKey. Every session may open the sftp subsystem.
func NewSSHServer(t testing.TB, cfg ServerConfig) *SSHServer {
	t.Helper()
	require.NotEmpty(t, cfg.HostKeys, "at least one host key")

	sc := &ssh.ServerConfig{}
	if cfg.Password != "" {
		sc.PasswordCallback = func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == cfg.User && string(pass) == cfg.Password {
				return nil, nil
			}
			return nil, errors.New("access denied")
		}
	}
	if cfg.AuthorizedKey != nil {
		want := cfg.AuthorizedKey.Marshal()
		sc.PublicKeyCallback = func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if c.User() == cfg.User && bytes.Equal(key.Marshal(), want) {
				return nil, nil
			}
			return nil, errors.New("access denied")
		}
	}
	for _, k := range cfg.HostKeys {
		sc.AddHostKey(k)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn, sc)
		}
	}()

	tcp := ln.Addr().(*net.TCPAddr)
	return &SSHServer{Addr: tcp.String(), Host: tcp.IP.String(), Port: tcp.Port}
}

func serve(conn net.Conn, cfg *ssh.ServerConfig) {
	defer conn.Close()
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "only sessions are served")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				// subsystem payload: uint32 length + name
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
				if !ok {
					continue
				}
				go func() {
					defer ch.Close()
					srv, err := sftp.NewServer(ch)
					if err != nil {
						return
					}
					_ = srv.Serve()
				}()
			}
		}()
	}
}

// Ed25519Key returns a fresh ed25519 signer and its private key.
func Ed25519Key(t testing.TB) (ssh.Signer, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer, priv
}

// ECDSAKey returns a fresh P-256 signer.
func ECDSAKey(t testing.TB) ssh.Signer {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

// PrivateKeyPEM encodes key in OpenSSH format, encrypted when passphrase
// is set.
func PrivateKeyPEM(t testing.TB, key ed25519.PrivateKey, passphrase string) []byte {
	t.Helper()
	var (
		block *pem.Block
		err   error
	)
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(key, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(key, "", []byte(passphrase))
	}
	require.NoError(t, err)
	return pem.EncodeToMemory(block)
}

// KnownHostsFile writes a known_hosts file pinning addr to keys.
func KnownHostsFile(t testing.TB, addr string, keys ...ssh.PublicKey) string {
	t.Helper()
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(knownhosts.Line([]string{knownhosts.Normalize(addr)}, k))
		b.WriteString("\n")
	}
	p := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o600))
	return p
}
