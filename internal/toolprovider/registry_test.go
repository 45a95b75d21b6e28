package toolprovider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: search
    transport: http
    endpoint: http://localhost:9000/tools
    tools:
      - name: web_search
        description: search the web
  - name: files
    transport: stdio
    command: mcp-files
    args: ["--root", "/tmp"]
    enabled: false
`), 0o644))

	cfgs, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "search", cfgs[0].Name)
	assert.True(t, cfgs[0].enabled())
	assert.Equal(t, "web_search", cfgs[0].Tools[0].Name)
	assert.False(t, cfgs[1].enabled())
	assert.Equal(t, []string{"--root", "/tmp"}, cfgs[1].Args)
}

func TestLoadConfigMissingFileYieldsNoProviders(t *testing.T) {
	cfgs, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfgs)
}

func TestLoadConfigRejectsInvalidProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: broken
    transport: http
`), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing an endpoint")
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(discardLogger())

	_, err := r.CallTool(context.Background(), "nope", "tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool provider not found: nope")
}

func TestRegistryConfigureRemovesAndKeepsProviders(t *testing.T) {
	r := NewRegistry(discardLogger())
	r.Configure([]ProviderConfig{
		{Name: "a", Transport: TransportHTTP, Endpoint: "http://a"},
		{Name: "b", Transport: TransportHTTP, Endpoint: "http://b"},
	})
	r.Configure([]ProviderConfig{
		{Name: "a", Transport: TransportHTTP, Endpoint: "http://a"},
	})

	desc := r.Descriptors()
	assert.Contains(t, desc, "a")
	assert.NotContains(t, desc, "b")

	r.Close()
	r.Close()
	assert.Empty(t, r.Descriptors())
}

func TestHTTPClientCallTool(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	r := NewRegistry(discardLogger())
	r.Configure([]ProviderConfig{{Name: "search", Transport: TransportHTTP, Endpoint: srv.URL}})

	out, err := r.CallTool(context.Background(), "search", "web_search", map[string]any{"query": "go"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(out))
	assert.Equal(t, "web_search", gotBody["tool"])
	assert.Equal(t, map[string]any{"query": "go"}, gotBody["arguments"])
}

func TestHTTPClientNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRegistry(discardLogger())
	r.Configure([]ProviderConfig{{Name: "search", Transport: TransportHTTP, Endpoint: srv.URL}})

	_, err := r.CallTool(context.Background(), "search", "web_search", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestStdioMissingCommandIsRemediable(t *testing.T) {
	r := NewRegistry(discardLogger())
	r.Configure([]ProviderConfig{{
		Name:      "files",
		Transport: TransportStdio,
		Command:   "definitely-not-a-real-command-deepagent",
	}})

	_, err := r.CallTool(context.Background(), "files", "read_file", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in PATH")
	assert.Contains(t, err.Error(), "provider config")
}

func TestStdioMissingWorkdirIsRemediable(t *testing.T) {
	r := NewRegistry(discardLogger())
	r.Configure([]ProviderConfig{{
		Name:      "files",
		Transport: TransportStdio,
		Command:   "sh",
		Workdir:   filepath.Join(t.TempDir(), "gone"),
	}})

	_, err := r.CallTool(context.Background(), "files", "read_file", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

// fakeServer replies to the handshake and one tools/list request the way a
// well-behaved stdio provider would.
const fakeServer = `
read line; echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}'
read line
while read line; do
  echo '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"echo_tool","description":"echoes input"}]}}'
done
`

func TestStdioHandshakeAndListTools(t *testing.T) {
	r := NewRegistry(discardLogger())
	r.Configure([]ProviderConfig{{
		Name:      "fake",
		Transport: TransportStdio,
		Command:   "sh",
		Args:      []string{"-c", fakeServer},
	}})
	defer r.Close()

	tools, err := r.ListTools(context.Background(), "fake")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo_tool", tools[0].Name)
}
