package monitor

import (
	"context"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pinger is any dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	store  Pinger
	driver string
	redis  *redislib.Client

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// New watches the category store and, when redis is non-nil, the tree cache.
func New(store Pinger, driver string, redis *redislib.Client, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:    store,
		driver:   driver,
		redis:    redis,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether the store answered the last probe. Redis only
// backs the tree cache, so its absence degrades but does not stop the service.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Store
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	status := Status{
		Store:        m.checkStore(),
		StoreDriver:  m.driver,
		RedisEnabled: m.redis != nil,
		Redis:        m.checkRedis(),
		LastCheck:    time.Now(),
	}

	m.mu.Lock()
	changed := m.status.Store != status.Store || m.status.Redis != status.Redis
	m.status = status
	m.mu.Unlock()

	if changed {
		m.logger.Info("dependency status changed",
			zap.String("store_driver", status.StoreDriver),
			zap.Bool("store", status.Store),
			zap.Bool("redis", status.Redis),
		)
	}
}

func (m *Monitor) checkStore() bool {
	if m.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.store.Ping(ctx); err != nil {
		m.logger.Warn("category store ping failed", zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) checkRedis() bool {
	if m.redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.redis.Ping(ctx).Err() == nil
}
