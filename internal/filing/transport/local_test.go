package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rerfiler/pkg/sentinel"
)

func seedResponse(t *testing.T, client *LocalClient, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(client.inboundDir, name), data, 0o644))
}

func newLocalForTest(t *testing.T) *LocalClient {
	t.Helper()
	root := t.TempDir()
	client, err := NewLocal(filepath.Join(root, "submissions"), filepath.Join(root, "responses"))
	require.NoError(t, err)
	return client
}

func TestLocalUploadAndList(t *testing.T) {
	ctx := context.Background()
	client := newLocalForTest(t)

	require.NoError(t, client.Upload(ctx, "RERX.20260201090000.TBSATEST.xml", []byte("<doc/>")))

	names, err := client.List(ctx, "outbound")
	require.NoError(t, err)
	assert.Equal(t, []string{"RERX.20260201090000.TBSATEST.xml"}, names)

	inbound, err := client.List(ctx, "inbound")
	require.NoError(t, err)
	assert.Empty(t, inbound)
}

func TestLocalDownload(t *testing.T) {
	ctx := context.Background()
	client := newLocalForTest(t)

	t.Run("missing file maps to ErrNotFound", func(t *testing.T) {
		_, err := client.Download(ctx, "nope.xml")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("reads a seeded response file", func(t *testing.T) {
		seedResponse(t, client, "r.xml", []byte("<RERXStatus/>"))
		data, err := client.Download(ctx, "r.xml")
		require.NoError(t, err)
		assert.Equal(t, []byte("<RERXStatus/>"), data)
	})
}

func TestLocalRespectsContextCancellation(t *testing.T) {
	client := newLocalForTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, client.Upload(ctx, "x.xml", nil))
	_, err := client.List(ctx, "inbound")
	assert.Error(t, err)
	_, err = client.Download(ctx, "x.xml")
	assert.Error(t, err)
}
