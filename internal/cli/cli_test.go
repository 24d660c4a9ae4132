package cli

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boothkit/boothkit/remote/httpremote"
	"github.com/boothkit/boothkit/remote/memstore"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// withEnv points the CLI at a temp cache and the given sync server URL.
func withEnv(t *testing.T, serverURL string) {
	t.Helper()
	t.Setenv("BOOTHKIT_DB_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("BOOTHKIT_REMOTE_KIND", "http")
	t.Setenv("BOOTHKIT_REMOTE_URL", serverURL)
	t.Setenv("LOG_LEVEL", "error")
}

func startServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(httpremote.NewServer(memstore.New()).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLeadAddAndListAgainstServer(t *testing.T) {
	withEnv(t, startServer(t))

	out, err := runCommand(t, "lead", "add", "--show", "dallas-market",
		"--contact", "Ana Flores", "--store", "Cactus Western Wear",
		"--temperature", "hot", "--interest", "boots")
	require.NoError(t, err)
	assert.Contains(t, out, "(synced)")

	out, err = runCommand(t, "lead", "list", "--show", "dallas-market")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana Flores / Cactus Western Wear")
	assert.NotContains(t, out, "[pending]")

	out, err = runCommand(t, "stats", "--show", "dallas-market", "--detailed")
	require.NoError(t, err)
	assert.Contains(t, out, "Total leads: 1")
	assert.Contains(t, out, "boots")
}

func TestLeadAddQueuesWhenServerUnreachable(t *testing.T) {
	withEnv(t, "http://127.0.0.1:1")

	out, err := runCommand(t, "lead", "add", "--show", "dallas-market",
		"--contact", "Ana Flores", "--store", "Cactus Western Wear")
	require.NoError(t, err)
	assert.Contains(t, out, "(queued for sync)")

	out, err = runCommand(t, "lead", "list", "--show", "dallas-market")
	require.NoError(t, err)
	assert.Contains(t, out, "[pending]")
	assert.Contains(t, out, "waiting to sync")

	_, err = runCommand(t, "sync", "--show", "dallas-market")
	assert.ErrorContains(t, err, "still queued")
}

func TestQueuedLeadSyncsWhenServerReturns(t *testing.T) {
	url := startServer(t)
	withEnv(t, "http://127.0.0.1:1")

	_, err := runCommand(t, "lead", "add", "--show", "dallas-market",
		"--contact", "Ana Flores", "--store", "Cactus Western Wear")
	require.NoError(t, err)

	// Same cache, reachable server now.
	t.Setenv("BOOTHKIT_REMOTE_URL", url)
	out, err := runCommand(t, "sync", "--show", "dallas-market")
	require.NoError(t, err)
	assert.Contains(t, out, "In sync")

	out, err = runCommand(t, "lead", "list", "--show", "dallas-market")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana Flores")
	assert.NotContains(t, out, "[pending]")
}

func TestAddLeadValidationError(t *testing.T) {
	withEnv(t, "http://127.0.0.1:1")

	_, err := runCommand(t, "lead", "add", "--show", "dallas-market", "--store", "No Contact")
	assert.ErrorContains(t, err, "contactName")
}

func TestShowFlagIsRequired(t *testing.T) {
	withEnv(t, "http://127.0.0.1:1")

	_, err := runCommand(t, "lead", "list")
	assert.ErrorContains(t, err, "--show is required")
}

func TestUserManagementRoundTrip(t *testing.T) {
	withEnv(t, startServer(t))

	out, err := runCommand(t, "user", "add", "Ana", "--show", "dallas-market", "--passcode", "1234")
	require.NoError(t, err)
	assert.Contains(t, out, "Added Ana")

	out, err = runCommand(t, "user", "list", "--show", "dallas-market")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana")
}

func TestUserManagementRequiresConnectivity(t *testing.T) {
	withEnv(t, "http://127.0.0.1:1")

	_, err := runCommand(t, "user", "add", "Ana", "--show", "dallas-market", "--passcode", "1234")
	assert.Error(t, err)
}
