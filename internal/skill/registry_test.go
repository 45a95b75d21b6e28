package skill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkillConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skills.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegistryMissingFileIsEmpty(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}

func TestLoadRegistryRejectsAmbiguousSkill(t *testing.T) {
	path := writeSkillConfig(t, `
skills:
  - name: both
    endpoint: http://localhost:9000
    command: echo hi
`)
	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of endpoint or command")
}

func TestLoadRegistryRejectsInvalidShell(t *testing.T) {
	path := writeSkillConfig(t, `
skills:
  - name: broken
    command: "if then fi ((("
`)
	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid shell command")
}

func TestCallEndpointSkill(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"done"}`))
	}))
	defer srv.Close()

	path := writeSkillConfig(t, `
skills:
  - name: translate
    endpoint: `+srv.URL+`
`)
	r, err := LoadRegistry(path)
	require.NoError(t, err)

	out, err := r.Call(context.Background(), "translate", map[string]any{"text": "hola"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"done"}`, string(out))
	assert.Equal(t, "hola", got["text"])
}

func TestCallCommandSkillPassesThroughJSONOutput(t *testing.T) {
	path := writeSkillConfig(t, `
skills:
  - name: echo
    command: "cat"
`)
	r, err := LoadRegistry(path)
	require.NoError(t, err)

	out, err := r.Call(context.Background(), "echo", map[string]any{"word": "go"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"word":"go"}`, string(out))
}

func TestCallCommandSkillWrapsPlainOutput(t *testing.T) {
	path := writeSkillConfig(t, `
skills:
  - name: greet
    command: "echo hello world"
`)
	r, err := LoadRegistry(path)
	require.NoError(t, err)

	out, err := r.Call(context.Background(), "greet", nil)
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, "hello world", parsed["output"])
}

func TestCallUnknownSkill(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	_, err = r.Call(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skill not found: nope")
}
