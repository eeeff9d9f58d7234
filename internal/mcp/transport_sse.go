package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"otto/internal/async"
	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

// sseTransport speaks JSON-RPC over a long-lived SSE stream: requests are
// POSTed to the endpoint the server announces, responses arrive as "message"
// events on the stream.
type sseTransport struct {
	baseURL string
	client  *http.Client
	logger  logging.Logger

	cancel     context.CancelFunc
	initSignal chan struct{}
	initOnce   sync.Once

	mu      sync.Mutex
	postURL string
	nextID  int64
	pending map[int64]chan *response
	closed  bool
}

// NewSSETransport connects to an SSE endpoint and waits for the server to
// announce its POST endpoint.
func NewSSETransport(ctx context.Context, baseURL string, timeout time.Duration, logger logging.Logger) (Transport, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	t := &sseTransport{
		baseURL:    baseURL,
		client:     &http.Client{}, // the stream request must not carry a client timeout
		logger:     logging.OrNop(logger),
		initSignal: make(chan struct{}),
		pending:    make(map[int64]chan *response),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport, "connect "+baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, ottoerrors.New(ottoerrors.KindTransport,
			fmt.Sprintf("sse endpoint returned status %d", resp.StatusCode))
	}

	readCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	async.Go(t.logger, "mcp-sse-read", func() { t.readLoop(readCtx, resp.Body) })

	select {
	case <-t.initSignal:
	case <-ctx.Done():
		t.Close()
		return nil, ctx.Err()
	case <-time.After(timeout):
		t.Close()
		return nil, ottoerrors.New(ottoerrors.KindTimeout, "timed out waiting for sse endpoint event")
	}
	return t, nil
}

func (t *sseTransport) readLoop(ctx context.Context, body io.ReadCloser) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	eventType := "message"
	var data bytes.Buffer

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			t.handleEvent(eventType, strings.TrimSuffix(data.String(), "\n"))
			eventType = "message"
			data.Reset()
			continue
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
			data.WriteByte('\n')
		}
		// id:, retry:, and comment lines are ignored.
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn("sse read error: %v", err)
	}

	t.mu.Lock()
	for callID, ch := range t.pending {
		delete(t.pending, callID)
		close(ch)
	}
	t.closed = true
	t.mu.Unlock()
}

func (t *sseTransport) handleEvent(eventType, data string) {
	switch eventType {
	case "endpoint":
		t.mu.Lock()
		t.postURL = data
		t.mu.Unlock()
		t.initOnce.Do(func() { close(t.initSignal) })
		t.logger.Debug("sse endpoint: %s", data)
	case "message":
		var resp response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			t.logger.Warn("sse: unparseable message: %v", err)
			return
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
}

func (t *sseTransport) Call(ctx context.Context, method string, params any) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ottoerrors.New(ottoerrors.KindTransport, "sse transport closed")
	}
	t.nextID++
	callID := t.nextID
	ch := make(chan *response, 1)
	t.pending[callID] = ch
	postURL := t.postURL
	t.mu.Unlock()

	cleanup := func() {
		t.mu.Lock()
		delete(t.pending, callID)
		t.mu.Unlock()
	}

	body, err := json.Marshal(request{
		JSONRPC: jsonRPCVersion,
		ID:      callID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.resolveURL(postURL), bytes.NewReader(body))
	if err != nil {
		cleanup()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		cleanup()
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport, "post "+method, err)
	}
	payload, _ := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		cleanup()
		return nil, ottoerrors.New(ottoerrors.KindTransport,
			fmt.Sprintf("%s returned status %d: %s", method, httpResp.StatusCode, string(payload)))
	}

	// Some servers answer inline; most answer over the stream.
	if len(payload) > 0 {
		var resp response
		if err := json.Unmarshal(payload, &resp); err == nil && resp.ID == callID &&
			(resp.Result != nil || resp.Error != nil) {
			cleanup()
			if resp.Error != nil {
				return nil, ottoerrors.Wrap(ottoerrors.KindTransport, method+" failed", resp.Error)
			}
			return resp.Result, nil
		}
	}

	select {
	case <-ctx.Done():
		cleanup()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ottoerrors.Wrap(ottoerrors.KindTimeout, method+" timed out", ctx.Err())
		}
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, ottoerrors.New(ottoerrors.KindTransport, "sse stream closed mid-call")
		}
		if resp.Error != nil {
			return nil, ottoerrors.Wrap(ottoerrors.KindTransport, method+" failed", resp.Error)
		}
		return resp.Result, nil
	}
}

func (t *sseTransport) resolveURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	base, err := url.Parse(t.baseURL)
	if err != nil {
		return endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
