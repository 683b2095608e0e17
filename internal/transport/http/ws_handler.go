package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-presence/internal/auth"
	"github.com/vovakirdan/wirechat-presence/internal/config"
	"github.com/vovakirdan/wirechat-presence/internal/core"
	"github.com/vovakirdan/wirechat-presence/internal/metrics"
	"github.com/vovakirdan/wirechat-presence/internal/proto"
	"github.com/vovakirdan/wirechat-presence/internal/utils"
)

// Application close codes.
const (
	StatusUnauthorized    websocket.StatusCode = 4401
	StatusSessionReplaced websocket.StatusCode = 4001
)

const (
	errCodeRateLimited = "rate_limited"

	writeTimeout      = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

var (
	errMissingUser     = errors.New("user identity is required")
	errUserMismatch    = errors.New("userId does not match token subject")
	errSessionReplaced = errors.New("session replaced")
	errServerClosed    = errors.New("server closed session")
)

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	hub           Hub
	authenticator *auth.Authenticator
	metrics       metrics.Recorder
	cfg           config.Config
	log           *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps Deps, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &WSHandler{
		hub:           deps.Hub,
		authenticator: deps.Authenticator,
		metrics:       rec,
		cfg:           cfg,
		log:           logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	token := credentialFromRequest(r, h.cfg.Auth.CookieName)
	queryUser := r.URL.Query().Get("userId")

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.WS.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.WS.MaxMessageBytes)
	}

	session := core.NewSession(utils.NewID())
	log := h.log.With().Str("session_id", session.ID).Logger()

	userID, err := h.identify(token, queryUser)
	if err == nil {
		err = session.Authenticate(userID)
	}
	if err != nil {
		session.Reject()
		h.reject(ctx, conn, &log, err)
		return
	}
	log = log.With().Str("user_id", session.UserID()).Logger()

	if err := h.hub.Connect(ctx, session); err != nil {
		log.Warn().Err(err).Msg("session not activated")
		conn.Close(websocket.StatusTryAgainLater, "unavailable")
		return
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := h.hub.Disconnect(dctx, session); err != nil && !errors.Is(err, core.ErrHubStopped) {
			log.Error().Err(err).Msg("disconnect session")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session, &log)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	if errors.Is(err, errSessionReplaced) || errors.Is(err, errServerClosed) {
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	if len(h.cfg.WS.AllowedOrigins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.cfg.WS.AllowedOrigins}
}

// identify resolves the connecting user. A present token is always
// validated when an authenticator is configured.
func (h *WSHandler) identify(token, queryUser string) (string, error) {
	queryUser = strings.TrimSpace(queryUser)

	if token == "" || h.authenticator == nil {
		if h.cfg.Auth.JWTRequired {
			return "", auth.ErrMissingToken
		}
		if queryUser == "" {
			return "", errMissingUser
		}
		return queryUser, nil
	}

	identity, err := h.authenticator.Authenticate(token)
	if err != nil {
		return "", err
	}
	if queryUser != "" && queryUser != identity.UserID {
		return "", errUserMismatch
	}
	return identity.UserID, nil
}

func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, log *zerolog.Logger, err error) {
	reason := "invalid_token"
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		reason = "missing_token"
	case errors.Is(err, errMissingUser):
		reason = "missing_user"
	case errors.Is(err, errUserMismatch):
		reason = "user_mismatch"
	}
	h.metrics.SessionRejected(reason)
	log.Info().Err(err).Str("reason", reason).Msg("connection rejected")

	message := "unauthorized"
	var ce *core.CoreError
	switch {
	case errors.As(err, &ce):
		message = ce.Message
	case errors.Is(err, errMissingUser), errors.Is(err, errUserMismatch), errors.Is(err, auth.ErrMissingToken):
		message = err.Error()
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if werr := wsjson.Write(wctx, conn, errorFrame(core.ErrCodeRejectedConnection, message)); werr != nil {
		log.Debug().Err(werr).Msg("write rejection frame")
	}
	conn.Close(StatusUnauthorized, "unauthorized")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, log *zerolog.Logger) error {
	limiter := newInboundLimiter(h.cfg.WS.InboundRatePerSec, h.cfg.WS.InboundBurst)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !allowInbound(limiter) {
			h.metrics.EventDropped("inbound_rate_limited")
			if err := h.write(ctx, conn, errorFrame(errCodeRateLimited, "too many events")); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			log.Debug().Err(err).Msg("malformed inbound frame")
			if err := h.write(ctx, conn, errorFrame(core.ErrCodeInvalidPayload, "malformed frame")); err != nil {
				return err
			}
			continue
		}

		if err := h.hub.Dispatch(ctx, inboundToCommand(session, inbound)); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, log *zerolog.Logger) error {
	var pings <-chan time.Time
	if h.cfg.WS.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.WS.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case event, ok := <-session.Events:
			if !ok {
				// Close before the reader is cancelled so the peer sees this status.
				if session.Replaced() {
					conn.Close(StatusSessionReplaced, "session replaced")
					return errSessionReplaced
				}
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return errServerClosed
			}
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Error().Err(err).Str("event", event.Name).Msg("write ws event")
				return err
			}
		case <-pings:
			if err := h.ping(ctx, conn); err != nil {
				log.Warn().Err(err).Msg("ws heartbeat failed")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}

func (h *WSHandler) ping(ctx context.Context, conn *websocket.Conn) error {
	timeout := h.cfg.WS.PongTimeout
	if timeout <= 0 {
		timeout = writeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Ping(ctx)
}
