package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// MatchChangeChannel is the postgres NOTIFY channel the matches trigger publishes to.
// The payload is the changed match code.
const MatchChangeChannel = "match_changes"

const feedPingInterval = 90 * time.Second

// PostgresMatchFeed fans LISTEN/NOTIFY events out to per-code watchers.
type PostgresMatchFeed struct {
	listener *pq.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func NewPostgresMatchFeed(dsn string, logger *slog.Logger) (*PostgresMatchFeed, error) {
	feed := &PostgresMatchFeed{
		logger:   logger,
		watchers: make(map[string]map[chan struct{}]struct{}),
	}

	listener := pq.NewListener(dsn, 1*time.Second, 30*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("match feed listener event", slog.Int("event", int(ev)), slog.Any("error", err))
		}
	})
	if err := listener.Listen(MatchChangeChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", MatchChangeChannel, err)
	}
	feed.listener = listener
	return feed, nil
}

// Run dispatches notifications until ctx is done.
func (f *PostgresMatchFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.listener.Notify:
			if n == nil {
				// Соединение переустановлено, уведомления могли потеряться: будим всех.
				f.logger.Info("match feed reconnected, waking all watchers")
				f.wakeAll()
				continue
			}
			f.wake(n.Extra)
		case <-ticker.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn("match feed ping failed", slog.Any("error", err))
				}
			}()
		}
	}
}

func (f *PostgresMatchFeed) Close() error {
	return f.listener.Close()
}

// watch returns a channel signalled whenever code changes. It is closed once ctx is done.
func (f *PostgresMatchFeed) watch(ctx context.Context, code string) <-chan struct{} {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	if _, ok := f.watchers[code]; !ok {
		f.watchers[code] = make(map[chan struct{}]struct{})
	}
	f.watchers[code][ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watchers[code], ch)
		if len(f.watchers[code]) == 0 {
			delete(f.watchers, code)
		}
		close(ch)
		f.mu.Unlock()
	}()
	return ch
}

func (f *PostgresMatchFeed) wake(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.watchers[code] {
		signal(ch)
	}
}

func (f *PostgresMatchFeed) wakeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, set := range f.watchers {
		for ch := range set {
			signal(ch)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
