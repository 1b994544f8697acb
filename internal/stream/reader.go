// Package stream reads assistant replies from the backend's
// server-sent-events endpoint.
//
// A Reader runs at most one stream at a time. Payloads are delivered to
// Handlers in arrival order from the reader's goroutine; OnDone fires
// exactly once when the stream completes, whether the server sent the
// [DONE] sentinel or simply closed the connection. Stopping the reader or
// cancelling the context passed to Start ends the stream silently.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/libra-app/libra-cli/internal/credstore"
	"github.com/libra-app/libra-cli/internal/logging"
)

// DefaultPath is the reply stream endpoint.
const DefaultPath = "/chat/ai/stream/"

const readSize = 4096

// ErrIdleTimeout is the stream error when no bytes arrive within
// Config.IdleTimeout.
var ErrIdleTimeout = errors.New("stream: idle timeout")

// State is the lifecycle position of a Reader.
type State int

const (
	StateIdle State = iota
	StateOpen
	StateStreaming
	StateDone
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// StatusError is a non-2xx answer to the stream request.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Unauthorized() {
		return fmt.Sprintf("stream unauthorized: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("stream: HTTP %d", e.StatusCode)
}

// Unauthorized reports a 401 or 403. The stream does not refresh tokens.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Handlers receive stream events. Any of them may be nil. They run on
// the reader goroutine and must not call Stop, Start or Close; cancel
// the context given to Start instead.
type Handlers struct {
	OnOpen  func()
	OnDelta func(payload string)
	OnDone  func()
}

// Config holds configuration for creating a Reader.
type Config struct {
	// BaseURL is the stream server root.
	BaseURL string
	// Path defaults to DefaultPath.
	Path string
	// HTTPClient defaults to a client without an overall timeout.
	HTTPClient *http.Client
	// Store supplies the bearer token. Optional.
	Store credstore.Store
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
	// IdleTimeout fails the stream when no bytes arrive for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// MaxBufferSize bounds an incomplete frame. Zero uses
	// DefaultMaxBufferSize.
	MaxBufferSize int
}

// Reader streams assistant replies.
type Reader struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewReader creates a Reader.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("stream: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("stream: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Reader{
		cfg:    cfg,
		client: client,
		log:    logging.OrNop(cfg.Logger).With().Str("component", "stream").Logger(),
	}, nil
}

// Start opens a reply stream for ticketID. Any active stream is stopped
// first, so handlers of a previous stream never run after Start returns.
// Start returns once the request is issued; progress is reported
// through h.
func (r *Reader) Start(ctx context.Context, ticketID int64, content string, h Handlers) error {
	r.Stop()

	req, err := r.newRequest(ticketID, content)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.state = StateOpen
	r.err = nil
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.run(streamCtx, cancel, req.WithContext(streamCtx), h, done)
	return nil
}

// Stop cancels the active stream, if any, and waits for its goroutine to
// exit. No handler runs after Stop returns.
func (r *Reader) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel(nil)
	<-done
}

// Close stops the active stream.
func (r *Reader) Close() error {
	r.Stop()
	return nil
}

// Wait blocks until the current stream ends and returns its error.
func (r *Reader) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
	return r.Err()
}

// State returns the lifecycle state of the current stream.
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure of the last stream. Cancellation is not an
// error.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Active reports whether a stream is open or streaming.
func (r *Reader) Active() bool {
	s := r.State()
	return s == StateOpen || s == StateStreaming
}

func (r *Reader) newRequest(ticketID int64, content string) (*http.Request, error) {
	q := url.Values{}
	q.Set("ticket_id", strconv.FormatInt(ticketID, 10))
	q.Set("content", content)

	path := r.cfg.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := strings.TrimRight(r.cfg.BaseURL, "/") + path + "?" + q.Encode()

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", ulid.Make().String())
	if r.cfg.Store != nil {
		if token, _ := r.cfg.Store.Get(credstore.KeyAccess); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (r *Reader) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// finish records the terminal state. Cancellation, including the idle
// timer firing, is decided from the context cause.
func (r *Reader) finish(ctx context.Context, err error) {
	state := StateErrored
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrIdleTimeout) {
			err = ErrIdleTimeout
		} else {
			state, err = StateCancelled, nil
		}
	}

	r.mu.Lock()
	r.state = state
	r.err = err
	r.mu.Unlock()

	if err != nil {
		r.log.Info().Err(err).Msg("stream failed")
	} else {
		r.log.Debug().Msg("stream cancelled")
	}
}

func (r *Reader) complete(h Handlers) {
	r.setState(StateDone)
	r.log.Debug().Msg("stream complete")
	if h.OnDone != nil {
		h.OnDone()
	}
}

func (r *Reader) run(ctx context.Context, cancel context.CancelCauseFunc, req *http.Request, h Handlers, done chan struct{}) {
	defer close(done)
	defer cancel(nil)

	var idle *time.Timer
	if r.cfg.IdleTimeout > 0 {
		idle = time.AfterFunc(r.cfg.IdleTimeout, func() { cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	r.log.Debug().Str("url", req.URL.Redacted()).Msg("opening stream")
	resp, err := r.client.Do(req)
	if err != nil {
		r.finish(ctx, fmt.Errorf("stream request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.finish(ctx, &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
		return
	}

	if ctx.Err() != nil {
		r.finish(ctx, nil)
		return
	}
	r.setState(StateStreaming)
	if h.OnOpen != nil {
		h.OnOpen()
	}

	dec := NewDecoder(r.cfg.MaxBufferSize)
	buf := make([]byte, readSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Reset(r.cfg.IdleTimeout)
			}
			deltas, finished, err := dec.Feed(buf[:n])
			if !r.deliver(ctx, h, deltas) {
				r.finish(ctx, nil)
				return
			}
			if finished {
				r.complete(h)
				return
			}
			if err != nil {
				r.finish(ctx, err)
				return
			}
		}

		if errors.Is(readErr, io.EOF) {
			if ctx.Err() != nil {
				r.finish(ctx, nil)
				return
			}
			deltas, _, _ := dec.Flush()
			if !r.deliver(ctx, h, deltas) {
				r.finish(ctx, nil)
				return
			}
			r.complete(h)
			return
		}
		if readErr != nil {
			r.finish(ctx, fmt.Errorf("reading stream: %w", readErr))
			return
		}
	}
}

// deliver hands payloads to OnDelta in order. It returns false when the
// stream was cancelled before all of them were delivered.
func (r *Reader) deliver(ctx context.Context, h Handlers, deltas []string) bool {
	for _, d := range deltas {
		if ctx.Err() != nil {
			return false
		}
		if h.OnDelta != nil {
			h.OnDelta(d)
		}
	}
	return ctx.Err() == nil
}
