package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// DefaultIdleTimeout locks an unlocked vault after five quiet minutes.
const DefaultIdleTimeout = 5 * time.Minute

// sessionLocker is the part of VaultService the idle locker drives.
type sessionLocker interface {
	State() model.SessionState
	LastActivity() time.Time
	Lock()
}

// IdleLocker locks the vault once no operation has touched it for the
// configured timeout. It lives outside the state machine and only calls Lock.
type IdleLocker struct {
	vault    sessionLocker
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewIdleLocker creates an IdleLocker. The vault is checked every tenth of
// the timeout, but at least once a second.
func NewIdleLocker(vault sessionLocker, timeout time.Duration) *IdleLocker {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	interval := timeout / 10
	if interval < time.Second {
		interval = time.Second
	}
	return &IdleLocker{
		vault:    vault,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the check loop until ctx is canceled.
func (l *IdleLocker) Start(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("idle locker stopped")
			return
		case <-ticker.C:
			l.check()
		}
	}
}

// check locks the vault if it has been idle for too long and reports whether
// it did.
func (l *IdleLocker) check() bool {
	if l.vault.State() != model.StateUnlocked {
		return false
	}
	idle := l.now().Sub(l.vault.LastActivity())
	if idle < l.timeout {
		return false
	}

	l.vault.Lock()
	slog.Info("vault auto-locked", "idle", idle.Round(time.Second))
	return true
}
