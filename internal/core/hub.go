package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/wirechat-presence/internal/broker"
	"github.com/vovakirdan/wirechat-presence/internal/metrics"
	"github.com/vovakirdan/wirechat-presence/internal/proto"
	"github.com/vovakirdan/wirechat-presence/internal/store"
	"github.com/vovakirdan/wirechat-presence/internal/utils"
)

const (
	persistQueueSize = 256
	storeTimeout     = 5 * time.Second
)

// Options configures a Hub. Every field is optional.
type Options struct {
	Store   store.MessageStore
	Broker  broker.Broker
	Metrics metrics.Recorder
	Logger  *zerolog.Logger

	// InstanceID tags envelopes this process publishes.
	InstanceID string

	// TypingRate limits typing signals per sender/receiver pair; zero disables it.
	TypingRate  rate.Limit
	TypingBurst int

	Now func() time.Time
}

type lifecycleKind int

const (
	opConnect lifecycleKind = iota
	opDisconnect
)

type lifecycleOp struct {
	kind    lifecycleKind
	session *Session
	result  chan error
}

type persistJob struct {
	op  string
	run func(ctx context.Context) error
}

// Hub is the single event loop of a process. It owns the registry and the
// router's connection table; every session transition and inbound event is
// handled on the loop goroutine, one at a time, to completion.
type Hub struct {
	registry *Registry
	router   *Router
	presence *Broadcaster
	typing   *typingLimiter

	store      store.MessageStore
	broker     broker.Broker
	metrics    metrics.Recorder
	log        zerolog.Logger
	now        func() time.Time
	instanceID string

	lifecycle chan lifecycleOp
	commands  chan *Command
	queries   chan func()
	persist   chan persistJob
	done      chan struct{}
}

// NewHub creates a hub. Call Run to start its loop.
func NewHub(opts Options) *Hub {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = utils.NewID()
	}

	log := logger.With().Str("component", "hub").Str("instance_id", instanceID).Logger()
	registry := NewRegistry()
	router := NewRouter(registry, opts.Broker, instanceID, rec, log)

	return &Hub{
		registry:   registry,
		router:     router,
		presence:   NewBroadcaster(registry, router),
		typing:     newTypingLimiter(opts.TypingRate, opts.TypingBurst),
		store:      opts.Store,
		broker:     opts.Broker,
		metrics:    rec,
		log:        log,
		now:        now,
		instanceID: instanceID,
		lifecycle:  make(chan lifecycleOp),
		commands:   make(chan *Command, 64),
		queries:    make(chan func()),
		persist:    make(chan persistJob, persistQueueSize),
		done:       make(chan struct{}),
	}
}

// Run processes hub work until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	var deliveries <-chan broker.Envelope
	if h.broker != nil {
		sub, err := h.broker.Subscribe(ctx)
		if err != nil {
			return err
		}
		deliveries = sub
	}

	go h.runPersistence(ctx)

	h.log.Info().Bool("broker", h.broker != nil).Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case op := <-h.lifecycle:
			op.result <- h.applyLifecycle(ctx, op)
		case cmd := <-h.commands:
			h.handleCommand(ctx, cmd)
		case query := <-h.queries:
			query()
		case env, ok := <-deliveries:
			if !ok {
				h.log.Error().Msg("broker subscription closed, cross-instance delivery stopped")
				deliveries = nil
				continue
			}
			h.deliverRemote(env)
		}
	}
}

// Connect activates an authenticated session: the user joins the registry
// and presence announces them online.
func (h *Hub) Connect(ctx context.Context, s *Session) error {
	return h.submit(ctx, lifecycleOp{kind: opConnect, session: s})
}

// Disconnect closes the session. The registry entry is removed and the user
// announced offline, unless a newer connection already replaced it.
func (h *Hub) Disconnect(ctx context.Context, s *Session) error {
	s.closing.Store(true)
	return h.submit(ctx, lifecycleOp{kind: opDisconnect, session: s})
}

// Dispatch queues an inbound command for the loop.
func (h *Hub) Dispatch(ctx context.Context, cmd *Command) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

// OnlineUsers returns a snapshot of users online on this instance.
func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	result := make(chan []string, 1)
	query := func() { result <- h.registry.ListOnline() }

	select {
	case h.queries <- query:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubStopped
	}
	return <-result, nil
}

func (h *Hub) submit(ctx context.Context, op lifecycleOp) error {
	op.result = make(chan error, 1)
	select {
	case h.lifecycle <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
	return <-op.result
}

func (h *Hub) applyLifecycle(ctx context.Context, op lifecycleOp) error {
	switch op.kind {
	case opConnect:
		return h.activate(ctx, op.session)
	case opDisconnect:
		h.deactivate(ctx, op.session)
		return nil
	default:
		return errors.New("unknown lifecycle operation")
	}
}

func (h *Hub) activate(ctx context.Context, s *Session) error {
	if s.closing.Load() || s.State() != StateAuthenticated {
		s.setState(StateClosed)
		return ErrSessionClosed
	}
	userID := s.UserID()
	if userID == "" {
		s.setState(StateClosed)
		return ErrRejectedConnection
	}

	if prevHandle, ok := h.registry.Lookup(userID); ok && prevHandle != s.ID {
		if prev, ok := h.router.conn(prevHandle); ok {
			h.evict(prev)
		}
	}

	h.registry.Join(userID, s.ID)
	h.router.attach(s)
	s.setState(StateActive)
	h.metrics.SessionOpened()

	h.log.Info().
		Str("session_id", s.ID).
		Str("user_id", userID).
		Int("online", h.registry.Len()).
		Msg("session active")

	h.presence.Announce(ctx, userID, proto.StatusOnline)
	return nil
}

func (h *Hub) deliverRemote(env broker.Envelope) {
	if env.Event == proto.EventUserStatusChanged {
		h.presence.Observe(env)
		return
	}
	h.router.Deliver(env)
}

// evict closes a session superseded by a newer connection for the same user.
func (h *Hub) evict(prev *Session) {
	prev.replaced.Store(true)
	h.router.ToConnection(prev.ID, proto.EventSessionReplaced, proto.ErrorData{
		Code:    ErrCodeSessionReplaced,
		Message: "session replaced by a newer connection",
	})
	h.router.detach(prev.ID)
	prev.closeEvents()
	prev.setState(StateClosed)
	h.metrics.SessionClosed()

	h.log.Warn().
		Str("session_id", prev.ID).
		Str("user_id", prev.UserID()).
		Msg("session replaced by newer connection")
}

func (h *Hub) deactivate(ctx context.Context, s *Session) {
	prevState := s.State()
	s.setState(StateClosed)
	if prevState != StateActive {
		s.closeEvents()
		return
	}

	userID := s.UserID()
	h.router.detach(s.ID)
	s.closeEvents()
	h.metrics.SessionClosed()
	h.typing.forget(userID)

	handle, ok := h.registry.Lookup(userID)
	if !ok || handle != s.ID {
		return
	}
	h.registry.Leave(userID)

	h.log.Info().
		Str("session_id", s.ID).
		Str("user_id", userID).
		Int("online", h.registry.Len()).
		Msg("session closed")

	h.presence.Announce(ctx, userID, proto.StatusOffline)
}

func (h *Hub) shutdown() {
	for handle, s := range h.router.conns {
		h.router.detach(handle)
		s.closeEvents()
		s.setState(StateClosed)
	}
	h.log.Info().Msg("hub stopped")
}

func (h *Hub) enqueuePersist(op string, run func(ctx context.Context) error) {
	if h.store == nil {
		return
	}
	select {
	case h.persist <- persistJob{op: op, run: run}:
	default:
		h.metrics.StoreFailed(op)
		h.log.Warn().Str("op", op).Msg("persistence queue full, dropping store write")
	}
}

func (h *Hub) runPersistence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-h.persist:
			jobCtx, cancel := context.WithTimeout(ctx, storeTimeout)
			if err := job.run(jobCtx); err != nil {
				h.metrics.StoreFailed(job.op)
				h.log.Error().Err(err).Str("op", job.op).Msg("message store write failed")
			}
			cancel()
		}
	}
}
