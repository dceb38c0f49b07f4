package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rerfiler/pkg/sentinel"
)

// LocalClient implements Client over two local directories. It backs demo
// and staging deployments that have no regulator connectivity, and doubles
// as the transport fake in tests: drop a response file into the inbound
// directory and the poller picks it up exactly as it would over SFTP.
type LocalClient struct {
	outboundDir string
	inboundDir  string
}

// NewLocal creates the directories if needed and returns a client.
func NewLocal(outboundDir, inboundDir string) (*LocalClient, error) {
	if outboundDir == "" || inboundDir == "" {
		return nil, fmt.Errorf("outbound and inbound directories are required")
	}
	for _, dir := range []string{outboundDir, inboundDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &LocalClient{outboundDir: outboundDir, inboundDir: inboundDir}, nil
}

func (c *LocalClient) Upload(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := filepath.Join(c.outboundDir, filename)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return &Error{Op: "upload " + filename, Err: err}
	}
	return nil
}

func (c *LocalClient) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.resolve(dir))
	if err != nil {
		return nil, &Error{Op: "list " + dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (c *LocalClient) Download(ctx context.Context, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(c.inboundDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", filename, sentinel.ErrNotFound)
		}
		return nil, &Error{Op: "download " + filename, Err: err}
	}
	return data, nil
}

// resolve maps the remote directory names callers use onto the local pair.
// Unknown names are treated as literal local paths, which keeps tooling able
// to inspect arbitrary directories.
func (c *LocalClient) resolve(dir string) string {
	switch dir {
	case "", ".", "inbound":
		return c.inboundDir
	case "outbound":
		return c.outboundDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(c.inboundDir), dir)
}
