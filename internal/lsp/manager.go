package lsp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultMaxRestarts bounds how many times a crashed server is respawned
// before the manager refuses further use.
const defaultMaxRestarts = 3

// Manager supervises one language server: lazy start on first use, crash
// detection, exponential-backoff restarts, and a hard restart budget.
type Manager struct {
	cfg         ServerConfig
	logger      *zap.Logger
	maxRestarts int
	backoffBase time.Duration

	mu       sync.Mutex
	client   *Client
	restarts int
	state    HealthState
	lastErr  error
}

// NewManager creates a manager; the server starts on first Client call.
func NewManager(cfg ServerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger.With(zap.String("language", cfg.Language)),
		maxRestarts: defaultMaxRestarts,
		backoffBase: time.Second,
		state:       StateNotStarted,
	}
}

// Client returns a live client, starting or restarting the server as
// needed. Restarts back off 2^attempt seconds; once the budget is spent
// every call fails with ErrRestartsExhausted.
func (m *Manager) Client(ctx context.Context) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.client.IsAlive() {
		return m.client, nil
	}

	if m.client != nil {
		m.lastErr = m.client.ExitError()
		m.logger.Warn("language server crashed", zap.Error(m.lastErr))
		m.client = nil
		m.state = StateCrashed
	}

	if m.state != StateNotStarted {
		if m.restarts >= m.maxRestarts {
			return nil, fmt.Errorf("%w: %s after %d restarts",
				ErrRestartsExhausted, m.cfg.Language, m.restarts)
		}
		m.restarts++

		backoff := m.backoffBase << m.restarts
		m.logger.Info("restarting language server",
			zap.Int("attempt", m.restarts),
			zap.Duration("backoff", backoff))

		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.state = StateStarting
	client, err := StartClient(ctx, m.cfg, m.logger)
	if err != nil {
		m.state = StateError
		m.lastErr = err
		return nil, err
	}

	m.client = client
	m.state = StateHealthy
	return client, nil
}

// HealthCheck reports the supervised server's state.
func (m *Manager) HealthCheck() HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateHealthy && m.client != nil && !m.client.IsAlive() {
		return StateCrashed
	}
	return m.state
}

// LastError returns the most recent start or crash error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Shutdown stops the server if running and resets the restart budget.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateNotStarted
	m.restarts = 0
	if m.client == nil {
		return nil
	}

	err := m.client.Shutdown(ctx)
	m.client = nil
	return err
}
