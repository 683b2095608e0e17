package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-presence/internal/auth"
	"github.com/vovakirdan/wirechat-presence/internal/config"
	"github.com/vovakirdan/wirechat-presence/internal/core"
	"github.com/vovakirdan/wirechat-presence/internal/metrics"
	"github.com/vovakirdan/wirechat-presence/internal/proto"
)

const testSecret = "testsecret"

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.JWTIssuer = "test"
	return cfg
}

func testJWTConfig(cfg config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		TTL:      time.Minute,
	}
}

func startTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *prometheus.Registry) {
	t.Helper()

	disabledLogger := zerolog.New(nil)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	hub := core.NewHub(core.Options{Metrics: collector, Logger: &disabledLogger})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	var authenticator *auth.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authenticator = auth.NewAuthenticator(testJWTConfig(cfg))
	}

	server := NewServer(Deps{
		Hub:           hub,
		Authenticator: authenticator,
		Metrics:       collector,
		Gatherer:      reg,
	}, cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})

	return ts, reg
}

func wsURL(ts *httptest.Server, query string) string {
	u := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, ctx context.Context, url string, opts *websocket.DialOptions) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	AckID string          `json:"ackId"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads frames until one matches.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) frame {
	t.Helper()
	return readUntil(t, ctx, conn, func(f frame) bool {
		return f.Type == proto.OutboundTypeEvent && f.Event == name
	})
}

func readAck(t *testing.T, ctx context.Context, conn *websocket.Conn, ackID string) frame {
	t.Helper()
	return readUntil(t, ctx, conn, func(f frame) bool {
		return f.Type == proto.OutboundTypeAck && f.AckID == ackID
	})
}

// readClose reads until the server closes the connection and returns the status.
func readClose(t *testing.T, ctx context.Context, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string, data any, ackID string) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", eventType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: eventType, Data: payload, AckID: ackID}); err != nil {
		t.Fatalf("send %s: %v", eventType, err)
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}
