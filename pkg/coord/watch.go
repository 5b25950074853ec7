package coord

import (
	"strings"
	"sync"

	"github.com/parvane/pvcd/pkg/events"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
)

// Action is returned by a watch callback to tell the registry whether to
// keep the watch armed.
type Action int

const (
	// Continue keeps the watch registered for future events on the path.
	Continue Action = iota
	// Stop deregisters the watch. Callbacks MUST return Stop when they
	// observe the watched path has been deleted.
	Stop
)

type watchKind int

const (
	watchData watchKind = iota
	watchChildren
)

type watcher struct {
	id       uint64
	path     string
	kind     watchKind
	callback func(path string, deleted bool) Action
}

// watchRegistry dispatches broker events onto registered watch callbacks
// on a dedicated goroutine so the coordination-store apply path never
// blocks on caller code.
type watchRegistry struct {
	broker *events.Broker
	sub    events.Subscriber

	mu      sync.Mutex
	nextID  uint64
	byPath  map[string][]*watcher
	stopCh  chan struct{}
}

func newWatchRegistry(broker *events.Broker) *watchRegistry {
	r := &watchRegistry{
		broker: broker,
		sub:    broker.Subscribe(),
		byPath: make(map[string][]*watcher),
		stopCh: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *watchRegistry) run() {
	for {
		select {
		case ev, ok := <-r.sub:
			if !ok {
				return
			}
			r.dispatch(ev)
		case <-r.stopCh:
			return
		}
	}
}

func (r *watchRegistry) dispatch(ev *events.Event) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CoordWatchDispatchDuration)

	path := ev.Metadata["path"]
	deleted := ev.Type == events.EventTreeDeleted

	r.mu.Lock()
	var toCall []*watcher
	for watchPath, ws := range r.byPath {
		for _, w := range ws {
			switch w.kind {
			case watchData:
				if watchPath == path {
					toCall = append(toCall, w)
				}
			case watchChildren:
				if strings.HasPrefix(path, watchPath+"/") || watchPath == path {
					toCall = append(toCall, w)
				}
			}
		}
	}
	r.mu.Unlock()

	for _, w := range toCall {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Logger.Error().Interface("panic", r).Str("path", path).Msg("coordination store watch callback panicked")
				}
			}()
			if w.callback(path, deleted) == Stop {
				r.remove(w)
			}
		}()
	}
}

func (r *watchRegistry) add(path string, kind watchKind, cb func(path string, deleted bool) Action) func() {
	r.mu.Lock()
	r.nextID++
	w := &watcher{id: r.nextID, path: path, kind: kind, callback: cb}
	r.byPath[path] = append(r.byPath[path], w)
	r.mu.Unlock()

	return func() { r.remove(w) }
}

func (r *watchRegistry) remove(target *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws := r.byPath[target.path]
	for i, w := range ws {
		if w.id == target.id {
			r.byPath[target.path] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(r.byPath[target.path]) == 0 {
		delete(r.byPath, target.path)
	}
}

func (r *watchRegistry) stop() {
	close(r.stopCh)
	r.broker.Unsubscribe(r.sub)
}

// WatchData arms a callback that fires on every write to path, and once
// more with deleted=true if path is removed, at which point the callback
// MUST return Stop so the watch is reaped.
func (c *Client) WatchData(path string, cb func(deleted bool) Action) (cancel func()) {
	return c.watches.add(path, watchData, func(_ string, deleted bool) Action {
		return cb(deleted)
	})
}

// WatchChildren arms a callback that fires whenever a direct or indirect
// descendant of path is created, written, or deleted.
func (c *Client) WatchChildren(path string, cb func(childPath string, deleted bool) Action) (cancel func()) {
	return c.watches.add(path, watchChildren, cb)
}
