package mcp

import (
	"context"
	"sync"
	"time"

	"otto/internal/config"
	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

// SessionManager owns the connections to configured external servers.
// Sessions are shared and reference-counted; the last releaser closes.
// Shutdown closes sessions in reverse acquisition order.
type SessionManager struct {
	servers []config.ServerConfig
	timeout time.Duration
	logger  logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
	order    []string // acquisition order for reverse shutdown
}

type session struct {
	client   *Client
	refCount int
}

// NewSessionManager builds a manager for the configured servers. No
// connections are made until Acquire.
func NewSessionManager(servers []config.ServerConfig, timeout time.Duration, logger logging.Logger) *SessionManager {
	return &SessionManager{
		servers:  servers,
		timeout:  timeout,
		logger:   logging.OrNop(logger),
		sessions: make(map[string]*session),
	}
}

// Servers lists configured server names.
func (m *SessionManager) Servers() []string {
	names := make([]string, 0, len(m.servers))
	for _, server := range m.servers {
		names = append(names, server.Name)
	}
	return names
}

// Acquire returns an initialized client for the named server, connecting on
// first use. The stdio transport is preferred; SSE is the fallback because
// remote stream providers are prone to hanging.
func (m *SessionManager) Acquire(ctx context.Context, name string) (*Client, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[name]; ok {
		existing.refCount++
		m.mu.Unlock()
		return existing.client, nil
	}
	m.mu.Unlock()

	server, ok := m.findServer(name)
	if !ok {
		return nil, ottoerrors.New(ottoerrors.KindNotFound, "unknown server: "+name)
	}

	client, err := m.connect(ctx, server)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[name]; ok {
		// Raced with another acquirer; keep the winner.
		existing.refCount++
		go client.Close()
		return existing.client, nil
	}
	m.sessions[name] = &session{client: client, refCount: 1}
	m.order = append(m.order, name)
	return client, nil
}

func (m *SessionManager) connect(ctx context.Context, server config.ServerConfig) (*Client, error) {
	var transportErr error
	if server.Command != "" {
		transport, err := NewStdioTransport(server.Command, server.Args, server.Env, m.logger)
		if err == nil {
			client := NewClient(server.Name, transport, m.timeout, m.logger)
			if initErr := client.Initialize(ctx); initErr == nil {
				return client, nil
			} else {
				transportErr = initErr
				client.Close()
			}
		} else {
			transportErr = err
		}
		m.logger.Warn("stdio connect to %s failed, trying sse: %v", server.Name, transportErr)
	}

	if server.SSEURL != "" {
		transport, err := NewSSETransport(ctx, server.SSEURL, m.timeout, m.logger)
		if err != nil {
			return nil, err
		}
		client := NewClient(server.Name, transport, m.timeout, m.logger)
		if err := client.Initialize(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}

	if transportErr != nil {
		return nil, transportErr
	}
	return nil, ottoerrors.New(ottoerrors.KindValidation,
		"server "+server.Name+" has neither a command nor an sse url")
}

// Release decrements the session's reference count, closing on zero.
func (m *SessionManager) Release(name string) {
	m.mu.Lock()
	existing, ok := m.sessions[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	existing.refCount--
	if existing.refCount > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, name)
	for i, ordered := range m.order {
		if ordered == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := existing.client.Close(); err != nil {
		m.logger.Warn("close session %s: %v", name, err)
	}
}

// Shutdown closes every open session in reverse acquisition order.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.order = nil
	m.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if existing, ok := sessions[name]; ok {
			if err := existing.client.Close(); err != nil {
				m.logger.Warn("shutdown session %s: %v", name, err)
			}
		}
	}
}

func (m *SessionManager) findServer(name string) (config.ServerConfig, bool) {
	for _, server := range m.servers {
		if server.Name == name {
			return server, true
		}
	}
	return config.ServerConfig{}, false
}
