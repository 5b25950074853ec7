package coord

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Lock is a held advisory lock. Unlock releases it; a lock is also
// released automatically if the holder's session expires.
type Lock struct {
	client    *Client
	path      string
	lockPath  string
}

// lockDir returns the directory under which a lock's sequential candidate
// nodes live, e.g. "/cmd/queue" -> "/locks/cmd/queue".
func lockDir(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	return "/locks/" + trimmed
}

// Lock acquires an advisory lock on path, blocking until it is held or ctx
// is done. It follows the standard sequential-ephemeral-node recipe: each
// waiter creates a sequential child, then watches the next-lowest sibling
// rather than polling the whole set, so contention doesn't cause a herd of
// watch wakeups when the lock is released.
func (c *Client) Lock(ctx context.Context, path string) (*Lock, error) {
	dir := lockDir(path)
	_, found, err := c.tree.get(dir)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := c.ensureDir(dir); err != nil {
			return nil, err
		}
	}

	myPath, err := c.Create(dir+"/lock-", nil, true, true)
	if err != nil {
		return nil, fmt.Errorf("create lock candidate under %s: %w", dir, err)
	}
	mySeq := myPath[strings.LastIndex(myPath, "/")+1:]

	for {
		children, err := c.ListChildren(dir)
		if err != nil {
			_ = c.Delete(myPath, false)
			return nil, err
		}
		sort.Strings(children)

		pos := -1
		for i, ch := range children {
			if ch == mySeq {
				pos = i
				break
			}
		}
		if pos == 0 {
			return &Lock{client: c, path: path, lockPath: myPath}, nil
		}
		if pos < 0 {
			_ = c.Delete(myPath, false)
			return nil, fmt.Errorf("lock candidate %s vanished before acquisition", myPath)
		}

		predecessor := dir + "/" + children[pos-1]
		acquired := make(chan struct{}, 1)
		cancelWatch := c.WatchData(predecessor, func(deleted bool) Action {
			if deleted {
				select {
				case acquired <- struct{}{}:
				default:
				}
				return Stop
			}
			return Continue
		})

		select {
		case <-acquired:
			cancelWatch()
		case <-ctx.Done():
			cancelWatch()
			_ = c.Delete(myPath, false)
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			// Predecessor may already have been removed between the
			// ListChildren call and the watch being armed; re-check.
			cancelWatch()
		}
	}
}

func (c *Client) ensureDir(path string) error {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		if _, found, err := c.tree.get(cur); err != nil {
			return err
		} else if !found {
			if _, err := c.Create(cur, nil, false, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.client.Delete(l.lockPath, false)
}
