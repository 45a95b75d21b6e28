package toolprovider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	protocolVersion = "2024-11-05"
	shutdownGrace   = 5 * time.Second
	maxLineSize     = 1 << 20
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcCall struct {
	method string
	params any
	reply  chan rpcResult
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

// stdioClient runs one long-lived subprocess speaking newline-delimited
// JSON-RPC 2.0 on stdin/stdout. The process starts lazily on first call and
// a failed start leaves the client retryable. The byte stream is a single
// ordered channel, so all calls funnel through one worker goroutine; callers
// enqueue a request and block on a per-call reply channel.
type stdioClient struct {
	cfg    ProviderConfig
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	calls   chan rpcCall
	quit    chan struct{}
}

func newStdioClient(cfg ProviderConfig, logger *slog.Logger) *stdioClient {
	return &stdioClient{cfg: cfg, logger: logger}
}

func (c *stdioClient) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	path, err := exec.LookPath(c.cfg.Command)
	if err != nil {
		return fmt.Errorf("command %q not found in PATH; install it or set an absolute path in the provider config", c.cfg.Command)
	}
	if c.cfg.Workdir != "" {
		info, err := os.Stat(c.cfg.Workdir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("working directory %q for provider %q does not exist; create it or update the provider config", c.cfg.Workdir, c.cfg.Name)
		}
	}

	cmd := exec.Command(path, c.cfg.Args...)
	cmd.Dir = c.cfg.Workdir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe for provider %s: %w", c.cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe for provider %s: %w", c.cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe for provider %s: %w", c.cfg.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start provider %s: %w", c.cfg.Name, err)
	}
	go c.drainStderr(stderr)

	reader := bufio.NewScanner(stdout)
	reader.Buffer(make([]byte, 64*1024), maxLineSize)

	if err := c.handshake(stdin, reader); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("initialize provider %s: %w", c.cfg.Name, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.calls = make(chan rpcCall)
	c.quit = make(chan struct{})
	c.started = true
	go c.serve(reader, c.calls, c.quit)

	c.logger.Info("tool provider started", "provider", c.cfg.Name, "command", path)
	return nil
}

// handshake sends initialize, reads exactly one reply line, then sends the
// initialized notification which expects no reply.
func (c *stdioClient) handshake(stdin io.Writer, reader *bufio.Scanner) error {
	id := int64(1)
	err := writeMessage(stdin, rpcRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{},
			"clientInfo": map[string]any{
				"name":    "deepagent",
				"version": "0.1.0",
			},
		},
	})
	if err != nil {
		return err
	}
	res, err := readMessage(reader)
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	return writeMessage(stdin, rpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"})
}

// serve owns the transport after the handshake. Request ids continue from
// the handshake's and only ever increase.
func (c *stdioClient) serve(reader *bufio.Scanner, calls <-chan rpcCall, quit <-chan struct{}) {
	id := int64(1)
	for {
		select {
		case <-quit:
			return
		case call := <-calls:
			id++
			reqID := id
			if err := writeMessage(c.stdin, rpcRequest{
				JSONRPC: "2.0",
				ID:      &reqID,
				Method:  call.method,
				Params:  call.params,
			}); err != nil {
				call.reply <- rpcResult{err: fmt.Errorf("write to provider %s: %w", c.cfg.Name, err)}
				continue
			}
			res, err := readMessage(reader)
			if err != nil {
				call.reply <- rpcResult{err: fmt.Errorf("read from provider %s: %w", c.cfg.Name, err)}
				continue
			}
			if res.Error != nil {
				call.reply <- rpcResult{err: fmt.Errorf("provider %s: %w", c.cfg.Name, res.Error)}
				continue
			}
			call.reply <- rpcResult{result: res.Result}
		}
	}
}

func (c *stdioClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	calls, quit := c.calls, c.quit
	c.mu.Unlock()

	req := rpcCall{method: method, params: params, reply: make(chan rpcResult, 1)}
	select {
	case calls <- req:
	case <-quit:
		return nil, fmt.Errorf("provider %s transport closed", c.cfg.Name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *stdioClient) CallTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.call(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	})
}

func (c *stdioClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("decode tool list from provider %s: %w", c.cfg.Name, err)
	}
	return parsed.Tools, nil
}

// Close stops the subprocess, waiting briefly before a forced kill.
// Safe to call when the process never started, and more than once.
func (c *stdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false
	close(c.quit)
	_ = c.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		c.logger.Warn("tool provider did not exit, killing", "provider", c.cfg.Name)
		_ = c.cmd.Process.Kill()
		<-done
	}
	return nil
}

func (c *stdioClient) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		c.logger.Debug("tool provider stderr", "provider", c.cfg.Name, "line", sc.Text())
	}
}

func writeMessage(w io.Writer, req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func readMessage(reader *bufio.Scanner) (*rpcResponse, error) {
	if !reader.Scan() {
		if err := reader.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var res rpcResponse
	if err := json.Unmarshal(reader.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &res, nil
}
