package cmdqueue

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/parvane/pvcd/pkg/coord"
	"github.com/parvane/pvcd/pkg/log"
	"github.com/parvane/pvcd/pkg/metrics"
	"github.com/parvane/pvcd/pkg/types"
)

// settleDelay is how long a handler waits after writing its result before
// releasing the lock, giving the requester time to observe the result
// before another request can land on the same key.
const settleDelay = time.Second

// Handler performs one request's work and must be idempotent: a handler
// crash releases the advisory lock automatically, and the request is
// retried by whichever instance next observes it pending.
type Handler func(ctx context.Context, args string) error

// Queue is the serial event processor for one /cmd/<channel> key: a single
// goroutine pulls triggers off a buffered channel and processes the
// channel's current request to completion before looking at the next
// trigger, the same shape as vmctl.Controller's per-domain processor.
type Queue struct {
	channel string
	coord   *coord.Client
	logger  zerolog.Logger

	handlers map[string]Handler

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds a Queue bound to /cmd/<channel>. Register handlers with
// RegisterHandler before calling Start.
func New(c *coord.Client, channel string) *Queue {
	return &Queue{
		channel:   channel,
		coord:     c,
		logger:    log.WithComponent("cmdqueue").With().Str("channel", channel).Logger(),
		handlers:  make(map[string]Handler),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// RegisterHandler binds verb to h. Call before Start; the handler map is
// not safe to mutate concurrently with Start's processing goroutine.
func (q *Queue) RegisterHandler(verb string, h Handler) {
	q.handlers[verb] = h
}

func (q *Queue) trigger() {
	select {
	case q.triggerCh <- struct{}{}:
	default:
	}
}

// Start arms a watch on the channel's coordination-store key and begins
// processing. Call Stop to tear down.
func (q *Queue) Start() {
	path := types.CmdChannelPath(q.channel)
	cancel := q.coord.WatchData(path, func(deleted bool) coord.Action {
		if deleted {
			return coord.Continue
		}
		q.trigger()
		return coord.Continue
	})

	go func() {
		defer cancel()
		defer close(q.doneCh)
		q.trigger()
		for {
			select {
			case <-q.triggerCh:
				q.processOnce(context.Background())
			case <-q.stopCh:
				return
			}
		}
	}()
}

// Stop halts processing and waits for the in-flight request, if any, to
// finish.
func (q *Queue) Stop() {
	close(q.stopCh)
	<-q.doneCh
}

func (q *Queue) processOnce(ctx context.Context) {
	path := types.CmdChannelPath(q.channel)

	valueBytes, found, err := q.coord.Read(path)
	if err != nil || !found {
		return
	}
	request := types.DecodeString(valueBytes)
	if request == "" || isResult(request) {
		return
	}

	lock, err := q.coord.Lock(ctx, path)
	if err != nil {
		q.logger.Warn().Err(err).Msg("acquire command lock failed")
		return
	}
	defer func() { _ = lock.Unlock() }()

	// Re-read under the lock: another handler instance may have already
	// serviced this request before we acquired it.
	valueBytes, found, err = q.coord.Read(path)
	if err != nil || !found {
		return
	}
	request = types.DecodeString(valueBytes)
	if request == "" || isResult(request) {
		return
	}

	verb, args := splitRequest(request)
	handler, ok := q.handlers[verb]
	if !ok {
		q.logger.Warn().Str("verb", verb).Msg("no handler registered for command verb")
		return
	}

	outcome := "success"
	result := "success-" + request
	if err := handler(ctx, args); err != nil {
		q.logger.Error().Err(err).Str("verb", verb).Msg("command handler failed")
		outcome = "failure"
		result = "failure-" + request
	}
	metrics.CommandsTotal.WithLabelValues(q.channel, outcome).Inc()

	if err := q.coord.Write(path, types.EncodeString(result)); err != nil {
		q.logger.Error().Err(err).Msg("write command result failed")
	}

	time.Sleep(settleDelay)
}

func isResult(request string) bool {
	return strings.HasPrefix(request, "success-") || strings.HasPrefix(request, "failure-")
}

func splitRequest(request string) (verb, args string) {
	parts := strings.SplitN(request, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
