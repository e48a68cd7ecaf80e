package remote

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTokenPath is where the authentication flow drops the token.
	DefaultTokenPath = "~/.loom/token"

	// DefaultRefreshPeriod is how often the token file is re-read.
	DefaultRefreshPeriod = 60 * time.Second
)

// TokenSource serves the current bearer token from a file the auth flow
// maintains. Token acquisition itself is out of scope; this only consumes
// the result.
type TokenSource struct {
	tokenPath     string
	refreshPeriod time.Duration
	log           *zap.Logger

	mu     sync.RWMutex
	token  string
	stopCh chan struct{}
}

// NewTokenSource creates a TokenSource reading from tokenPath.
func NewTokenSource(tokenPath string, log *zap.Logger) *TokenSource {
	if tokenPath == "" {
		tokenPath = DefaultTokenPath
	}
	return &TokenSource{
		tokenPath:     tokenPath,
		refreshPeriod: DefaultRefreshPeriod,
		log:           log,
		stopCh:        make(chan struct{}),
	}
}

// Start loads the token and begins the refresh cycle.
func (t *TokenSource) Start(ctx context.Context) {
	t.refresh()

	ticker := time.NewTicker(t.refreshPeriod)
	go func() {
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-t.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the refresh cycle.
func (t *TokenSource) Stop() {
	close(t.stopCh)
}

func (t *TokenSource) refresh() {
	data, err := os.ReadFile(t.tokenPath)
	if err != nil {
		// A missing token file just means signed out.
		if !os.IsNotExist(err) {
			t.log.Warn("failed to read token file", zap.String("path", t.tokenPath), zap.Error(err))
		}
		return
	}

	t.mu.Lock()
	t.token = string(data)
	t.mu.Unlock()
}

// Token returns the current token, empty when signed out.
func (t *TokenSource) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}
