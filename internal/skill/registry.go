// Package skill exposes named skills the agent can call: HTTP endpoints or
// local shell one-liners that take a JSON payload on stdin.
package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/kazz187/deepagent/pkg/cerr"
)

const callTimeout = 30 * time.Second

// Skill is one callable skill. Exactly one of Endpoint or Command is set.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Endpoint    string `yaml:"endpoint"`
	Command     string `yaml:"command"`
}

type configFile struct {
	Skills []Skill `yaml:"skills"`
}

// Registry holds the configured skill set, immutable after load.
type Registry struct {
	skills map[string]Skill
	http   *http.Client
}

// LoadRegistry reads the skill configuration file. A missing file yields an
// empty registry. Command skills are parsed up front so a config typo fails
// at startup, not mid-run.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{
		skills: make(map[string]Skill),
		http:   &http.Client{Timeout: callTimeout},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read skill config %s: %w", path, err)
	}
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse skill config %s: %w", path, err)
	}
	for _, s := range f.Skills {
		if s.Name == "" {
			return nil, fmt.Errorf("skill config %s: skill is missing a name", path)
		}
		if (s.Endpoint == "") == (s.Command == "") {
			return nil, fmt.Errorf("skill config %s: skill %q needs exactly one of endpoint or command", path, s.Name)
		}
		if s.Command != "" {
			normalized, err := normalizeCommand(s.Command)
			if err != nil {
				return nil, fmt.Errorf("skill config %s: skill %q: %w", path, s.Name, err)
			}
			s.Command = normalized
		}
		r.skills[s.Name] = s
	}
	return r, nil
}

// Names returns the configured skill names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	return names
}

// Call invokes a skill with a JSON payload and returns its raw result.
func (r *Registry) Call(ctx context.Context, name string, payload map[string]any) (json.RawMessage, error) {
	s, ok := r.skills[name]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "skill not found: "+name, nil)
	}
	if s.Endpoint != "" {
		return r.callEndpoint(ctx, s, payload)
	}
	return r.callCommand(ctx, s, payload)
}

func (r *Registry) callEndpoint(ctx context.Context, s Skill, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode skill payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build skill request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call skill %s: %w", s.Name, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read skill %s response: %w", s.Name, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("skill %s returned %d", s.Name, res.StatusCode)
	}
	return json.RawMessage(data), nil
}

func (r *Registry) callCommand(ctx context.Context, s Skill, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode skill payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", s.Command)
	cmd.Stdin = bytes.NewReader(body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("skill %s failed: %w: %s", s.Name, err, strings.TrimSpace(stderr.String()))
	}
	out := bytes.TrimSpace(stdout.Bytes())
	if json.Valid(out) {
		return json.RawMessage(out), nil
	}
	wrapped, err := json.Marshal(map[string]string{"output": string(out)})
	if err != nil {
		return nil, fmt.Errorf("encode skill %s output: %w", s.Name, err)
	}
	return json.RawMessage(wrapped), nil
}

// normalizeCommand parses a shell one-liner and prints it back in canonical
// form, rejecting anything that is not valid POSIX shell.
func normalizeCommand(command string) (string, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	prog, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return "", fmt.Errorf("invalid shell command: %w", err)
	}
	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.SpaceRedirects(true))
	if err := printer.Print(&buf, prog); err != nil {
		return "", fmt.Errorf("normalize shell command: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
