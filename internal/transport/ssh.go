package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
)

// DefaultConnectTimeout bounds the initial connectivity check. Later
// commands block on the channel itself; callers embedding this transport
// should add their own deadlines.
const DefaultConnectTimeout = 15 * time.Second

// SSH is the remote transport. Authentication is private-key only; there
// is no password fallback. Every Run opens a fresh session, so no state
// carries over between commands beyond the connection itself.
type SSH struct {
	client *ssh.Client
	addr   string
}

// Connect dials the host and authenticates with the private key at
// keyPath. The dial is bounded by timeout; a failure here is the
// connectivity check failing.
func Connect(ctx context.Context, host, user, keyPath string, timeout time.Duration) (*SSH, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Target hosts are freshly provisioned and not in known_hosts yet.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, "22")

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			config.Timeout = remaining
		}
	}

	conn, err := net.DialTimeout("tcp", addr, config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("host unreachable: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake failed: %w", err)
	}

	return &SSH{client: ssh.NewClient(clientConn, chans, reqs), addr: addr}, nil
}

// Run executes one command on the remote host in its own session.
func (s *SSH) Run(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	err = session.Run(RemoteCommand(argv))

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
			return result, fmt.Errorf("command exited with code %d", result.ExitCode)
		}
		result.ExitCode = -1
		return result, fmt.Errorf("remote command failed: %w", err)
	}

	return result, nil
}

// Close tears down the SSH connection.
func (s *SSH) Close() error {
	return s.client.Close()
}

// RemoteCommand renders an argv vector into the single string the remote
// shell receives. Quoting is the injection barrier: the rendered string
// is exactly one command regardless of argument content.
func RemoteCommand(argv []string) string {
	return shellquote.Join(argv...)
}
