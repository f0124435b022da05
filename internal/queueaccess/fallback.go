package queueaccess

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"herald/internal/api"
)

// ErrDaemonBusy means a daemon holds the queue lock but its API could not be
// reached, so the queue file must not be written from here.
var ErrDaemonBusy = errors.New("herald daemon holds the queue lock but its API is unreachable; check paths.api_bind")

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	// Remote is true when operations go through the daemon API.
	Remote bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Local carries the collaborators for direct store access.
type Local struct {
	Access Access
	Close  func() error
}

// OpenWithFallback tries the daemon API first, then falls back to direct
// store access under the daemon lock.
func OpenWithFallback(
	dial func() (*api.Client, error),
	lockPath string,
	openLocal func() (Local, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil && client != nil {
			return Session{Access: NewAPIAccess(client), Remote: true}, nil
		}
	}

	if openLocal == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return Session{}, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return Session{}, fmt.Errorf("acquire queue lock: %w", err)
	}
	if !ok {
		return Session{}, ErrDaemonBusy
	}

	local, err := openLocal()
	if err != nil {
		_ = lock.Unlock()
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: local.Access,
		close: func() error {
			var closeErr error
			if local.Close != nil {
				closeErr = local.Close()
			}
			if err := lock.Unlock(); err != nil && closeErr == nil {
				closeErr = err
			}
			return closeErr
		},
	}, nil
}
