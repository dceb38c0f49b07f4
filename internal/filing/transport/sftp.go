package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"rerfiler/pkg/sentinel"
)

// SFTPConfig describes one remote endpoint. Outbound and inbound directories
// differ between sandbox and production; both are fixed by the regulator.
type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// PrivateKeyPEM takes precedence over Password when set.
	PrivateKeyPEM []byte
	// HostKey pins the server's public key. When empty the client accepts
	// any host key, which is only acceptable against the sandbox.
	HostKey []byte

	OutboundDir string
	InboundDir  string

	Timeout time.Duration
	Retry   RetryPolicy
}

// SFTPClient implements Client over SSH file transfer. Each operation dials a
// fresh session bounded by the configured timeout; the regulator's endpoint
// drops idle connections aggressively, so pooling buys nothing.
type SFTPClient struct {
	cfg SFTPConfig
}

// NewSFTP validates the endpoint configuration and returns a client.
func NewSFTP(cfg SFTPConfig) (*SFTPClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("sftp user is required")
	}
	if cfg.Password == "" && len(cfg.PrivateKeyPEM) == 0 {
		return nil, fmt.Errorf("sftp password or private key is required")
	}
	if cfg.OutboundDir == "" || cfg.InboundDir == "" {
		return nil, fmt.Errorf("sftp outbound and inbound directories are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SFTPClient{cfg: cfg}, nil
}

// Upload writes data to the outbound directory under filename. A failure
// after the remote file was created is reported as ambiguous: the bytes may
// have landed, so the caller must check for responses before re-uploading.
func (c *SFTPClient) Upload(ctx context.Context, filename string, data []byte) error {
	op := "upload " + filename
	return withRetry(ctx, c.cfg.Retry, func() error {
		conn, client, err := c.dial(ctx)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		defer conn.Close()
		defer client.Close()

		remote := path.Join(c.cfg.OutboundDir, filename)
		f, err := client.Create(remote)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("create remote file: %w", err)}
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			return &Error{Op: op, Ambiguous: true, Err: fmt.Errorf("write remote file: %w", err)}
		}
		if err := f.Close(); err != nil {
			return &Error{Op: op, Ambiguous: true, Err: fmt.Errorf("close remote file: %w", err)}
		}
		return nil
	})
}

// List returns the filenames in the given remote directory.
func (c *SFTPClient) List(ctx context.Context, dir string) ([]string, error) {
	var names []string
	op := "list " + dir
	err := withRetry(ctx, c.cfg.Retry, func() error {
		conn, client, err := c.dial(ctx)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		defer conn.Close()
		defer client.Close()

		entries, err := client.ReadDir(dir)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("read remote dir: %w", err)}
		}
		names = names[:0]
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		return nil
	})
	return names, err
}

// Download reads a file from the inbound directory. A missing file returns
// sentinel.ErrNotFound.
func (c *SFTPClient) Download(ctx context.Context, filename string) ([]byte, error) {
	var data []byte
	op := "download " + filename
	err := withRetry(ctx, c.cfg.Retry, func() error {
		conn, client, err := c.dial(ctx)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		defer conn.Close()
		defer client.Close()

		remote := path.Join(c.cfg.InboundDir, filename)
		f, err := client.Open(remote)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", remote, sentinel.ErrNotFound)
			}
			return &Error{Op: op, Err: fmt.Errorf("open remote file: %w", err)}
		}
		defer f.Close()

		data, err = io.ReadAll(f)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("read remote file: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *SFTPClient) dial(ctx context.Context) (*ssh.Client, *sftp.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		Timeout:         c.cfg.Timeout,
		HostKeyCallback: c.hostKeyCallback(),
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	} else {
		_ = netConn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	// Handshake done; let the per-operation timeout govern from here.
	_ = netConn.SetDeadline(time.Time{})

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	return sshClient, sftpClient, nil
}

func (c *SFTPClient) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if len(c.cfg.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(c.cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.cfg.Password != "" {
		methods = append(methods, ssh.Password(c.cfg.Password))
	}
	return methods, nil
}

func (c *SFTPClient) hostKeyCallback() ssh.HostKeyCallback {
	if len(c.cfg.HostKey) > 0 {
		if key, _, _, _, err := ssh.ParseAuthorizedKey(c.cfg.HostKey); err == nil {
			return ssh.FixedHostKey(key)
		}
	}
	return ssh.InsecureIgnoreHostKey() // sandbox only; production config pins the key
}
