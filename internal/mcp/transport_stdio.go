package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"otto/internal/async"
	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

// stdioTransport runs a child process and speaks line-delimited JSON-RPC
// over its standard streams.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger logging.Logger

	nextID  atomic.Int64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *response
	closed  bool
	done    chan struct{}

	waitOnce sync.Once
	waitErr  error
}

// NewStdioTransport spawns command and wires its streams. The child's stderr
// is passed through for operator visibility.
func NewStdioTransport(command string, args []string, env map[string]string, logger logging.Logger) (Transport, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport, "spawn "+command, err)
	}

	t := &stdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logging.OrNop(logger),
		pending: make(map[int64]chan *response),
		done:    make(chan struct{}),
	}
	async.Go(t.logger, "mcp-stdio-read", func() { t.readLoop(stdout) })
	return t, nil
}

func (t *stdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Warn("stdio: unparseable line: %v", err)
			continue
		}
		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}

	// Child exited or pipe broke; fail every waiter.
	t.mu.Lock()
	for callID, ch := range t.pending {
		delete(t.pending, callID)
		close(ch)
	}
	t.closed = true
	t.mu.Unlock()
	close(t.done)
}

func (t *stdioTransport) Call(ctx context.Context, method string, params any) ([]byte, error) {
	callID := t.nextID.Add(1)
	ch := make(chan *response, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ottoerrors.New(ottoerrors.KindTransport, "stdio transport closed")
	}
	t.pending[callID] = ch
	t.mu.Unlock()

	payload, err := json.Marshal(request{
		JSONRPC: jsonRPCVersion,
		ID:      callID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')

	t.writeMu.Lock()
	_, err = t.stdin.Write(payload)
	t.writeMu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.pending, callID)
		t.mu.Unlock()
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport, "write to child", err)
	}

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, callID)
		t.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ottoerrors.Wrap(ottoerrors.KindTimeout, method+" timed out", ctx.Err())
		}
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, ottoerrors.New(ottoerrors.KindTransport, "server exited mid-call")
		}
		if resp.Error != nil {
			return nil, ottoerrors.Wrap(ottoerrors.KindTransport, method+" failed", resp.Error)
		}
		return resp.Result, nil
	}
}

func (t *stdioTransport) Close() error {
	t.mu.Lock()
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()

	if !alreadyClosed {
		_ = t.stdin.Close()
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	}

	// The child is reaped even when the read loop already saw EOF, otherwise
	// a server that exits on its own leaves a zombie behind.
	<-t.done
	t.waitOnce.Do(func() { t.waitErr = t.cmd.Wait() })
	return t.waitErr
}
