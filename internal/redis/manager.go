package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/guildstats/internal/setup/config"
	"go.uber.org/zap"
)

// CacheDBIndex holds cached guild statistics.
const CacheDBIndex = 0

// DefaultRedialInterval is used when the configuration leaves it unset.
const DefaultRedialInterval = 5 * time.Second

// ErrUnavailable is returned while a database is inside its redial cooldown.
var ErrUnavailable = errors.New("redis unavailable")

// Manager hands out one rueidis client per database index. Clients are dialed
// on first use. A failed dial is not retried until the redial interval has
// passed, so an unreachable server costs one dial per interval rather than
// one per request.
type Manager struct {
	clients  map[int]rueidis.Client
	failedAt map[int]time.Time
	config   *config.Redis
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewManager creates a manager without connecting.
func NewManager(config *config.Redis, logger *zap.Logger) *Manager {
	return &Manager{
		clients:  make(map[int]rueidis.Client),
		failedAt: make(map[int]time.Time),
		config:   config,
		logger:   logger.Named("redis"),
	}
}

// GetClient returns the client for dbIndex, dialing it if needed.
func (m *Manager) GetClient(dbIndex int) (rueidis.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[dbIndex]; exists {
		return client, nil
	}

	if failedAt, ok := m.failedAt[dbIndex]; ok && time.Since(failedAt) < m.redialInterval() {
		return nil, fmt.Errorf("%w: DB %d", ErrUnavailable, dbIndex)
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)},
		Username:     m.config.Username,
		Password:     m.config.Password,
		SelectDB:     dbIndex,
		ClientName:   "guildstats",
		DisableCache: true,
	})
	if err != nil {
		m.failedAt[dbIndex] = time.Now()
		m.logger.Warn("Failed to connect to Redis",
			zap.Int("dbIndex", dbIndex),
			zap.Duration("redialIn", m.redialInterval()),
			zap.Error(err))

		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", dbIndex, err)
	}

	delete(m.failedAt, dbIndex)
	m.clients[dbIndex] = client
	m.logger.Info("Created new Redis client", zap.Int("dbIndex", dbIndex))

	return client, nil
}

// ClientFunc binds GetClient to one database index.
func (m *Manager) ClientFunc(dbIndex int) func() (rueidis.Client, error) {
	return func() (rueidis.Client, error) {
		return m.GetClient(dbIndex)
	}
}

// Ping checks that the database at dbIndex answers.
func (m *Manager) Ping(ctx context.Context, dbIndex int) error {
	client, err := m.GetClient(dbIndex)
	if err != nil {
		return err
	}

	return client.Do(ctx, client.B().Ping().Build()).Error()
}

// Close shuts down all active Redis clients. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		delete(m.clients, dbIndex)
		m.logger.Info("Closed Redis client", zap.Int("dbIndex", dbIndex))
	}
}

func (m *Manager) redialInterval() time.Duration {
	if m.config.RedialInterval > 0 {
		return m.config.RedialInterval
	}
	return DefaultRedialInterval
}
