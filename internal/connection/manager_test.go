package connection

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"marketfeed/internal/account"
	"marketfeed/internal/auth"
	"marketfeed/internal/channel"
	"marketfeed/internal/dispatch"
	"marketfeed/internal/store"
	"marketfeed/internal/subscription"
)

type managerFixture struct {
	manager  *Manager
	registry *subscription.Registry
	tokens   *auth.TokenStore
	store    *store.Store
	book     *account.Book
	bus      *dispatch.Bus
}

func newManagerFixture(url string) *managerFixture {
	tokens := &auth.TokenStore{}
	registry := subscription.NewRegistry(tokens, nil)
	st := store.NewStore(nil)
	book := account.NewBook(nil)
	bus := dispatch.NewBus(nil)
	dispatcher := dispatch.NewDispatcher(st, book, bus, nil)

	cfg := DefaultManagerConfig()
	cfg.URL = url

	return &managerFixture{
		manager:  NewManager(cfg, registry, dispatcher, nil),
		registry: registry,
		tokens:   tokens,
		store:    st,
		book:     book,
		bus:      bus,
	}
}

// echoServer keeps the connection open and forwards every received text
// frame to the frames channel.
func echoServer(t *testing.T, frames chan<- []byte) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage && frames != nil {
				frames <- data
			}
		}
	}
}

func recvFrame(t *testing.T, frames <-chan []byte) ControlFrame {
	t.Helper()
	select {
	case data := <-frames:
		var frame ControlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal control frame: %v", err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for control frame")
		return ControlFrame{}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// quoteFrame builds one binary quote-list frame with a single quote.
func quoteFrame(stockCd string, bid, ask float64, ts int64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x01)
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(len(stockCd)))
	buf.WriteString(stockCd)
	binary.Write(&buf, binary.BigEndian, math.Float64bits(bid))
	binary.Write(&buf, binary.BigEndian, math.Float64bits(ask))
	binary.Write(&buf, binary.BigEndian, int64(10)) // bid size
	binary.Write(&buf, binary.BigEndian, int64(20)) // ask size
	binary.Write(&buf, binary.BigEndian, ts)
	return buf.Bytes()
}

func TestManager_Lifecycle(t *testing.T) {
	server := mockWSServer(t, echoServer(t, nil))
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if f.manager.State() != StateDisconnected {
		t.Fatalf("initial state = %s, want disconnected", f.manager.State())
	}

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if f.manager.State() != StateConnected {
		t.Errorf("state = %s, want connected", f.manager.State())
	}

	// Connecting on a live connection is rejected.
	if err := f.manager.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}

	if err := f.manager.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
	if f.manager.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", f.manager.State())
	}
}

func TestManager_ConnectFailure(t *testing.T) {
	// Nothing listens here; dial fails fast.
	f := newManagerFixture("ws://127.0.0.1:1")

	err := f.manager.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect to fail")
	}
	if f.manager.State() != StateError {
		t.Errorf("state = %s, want error", f.manager.State())
	}

	// The error state permits another attempt.
	if err := f.manager.Connect(context.Background()); errors.Is(err, ErrAlreadyConnected) {
		t.Error("Connect from error state must not report ErrAlreadyConnected")
	}
}

func TestManager_ConnectTimeout(t *testing.T) {
	// A listener that accepts and never speaks WebSocket keeps the dial
	// pending until the connect bound fires.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	f := newManagerFixture("ws://" + ln.Addr().String())
	f.manager.cfg.ConnectTimeout = 100 * time.Millisecond

	err = f.manager.Connect(context.Background())
	if !errors.Is(err, ErrConnectTimeout) {
		t.Errorf("Connect = %v, want ErrConnectTimeout", err)
	}
	if f.manager.State() != StateError {
		t.Errorf("state = %s, want error", f.manager.State())
	}
}

func TestManager_ReconcileSendsSubscribe(t *testing.T) {
	frames := make(chan []byte, 10)
	server := mockWSServer(t, echoServer(t, frames))
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	f.manager.SetDesired([]channel.Channel{
		channel.MarketQuote(),
		channel.MarketOrderBook("005930"),
	})
	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	frame := recvFrame(t, frames)
	if frame.Action != ActionSubscribe {
		t.Errorf("action = %q, want SUBSCRIBE", frame.Action)
	}
	if frame.ID == "" {
		t.Error("control frame must carry a correlation ID")
	}
	if len(frame.Channels) != 2 {
		t.Errorf("channels = %v, want 2 entries", frame.Channels)
	}
	if frame.Token != "" {
		t.Errorf("token = %q, market-only subscribe must not carry a token", frame.Token)
	}

	if got := f.manager.Stats().SubscribesSent; got != 1 {
		t.Errorf("SubscribesSent = %d, want 1", got)
	}

	// Nothing changed: no further frames.
	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	select {
	case data := <-frames:
		t.Errorf("unexpected frame on no-op reconcile: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_SubscribePrivateCarriesToken(t *testing.T) {
	frames := make(chan []byte, 10)
	server := mockWSServer(t, echoServer(t, frames))
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	f.manager.SetAccessToken("jwt-token")
	f.manager.SetDesired([]channel.Channel{channel.Private("ACC123")})
	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	frame := recvFrame(t, frames)
	if frame.Action != ActionSubscribe {
		t.Errorf("action = %q, want SUBSCRIBE", frame.Action)
	}
	if len(frame.Channels) != 1 || frame.Channels[0] != "private.ACC123" {
		t.Errorf("channels = %v, want [private.ACC123]", frame.Channels)
	}
	if frame.Token != "Bearer jwt-token" {
		t.Errorf("token = %q, want Bearer jwt-token", frame.Token)
	}
}

func TestManager_ReconcileNotConnected(t *testing.T) {
	f := newManagerFixture("ws://localhost:12345")
	f.manager.SetDesired([]channel.Channel{channel.MarketQuote()})

	err := f.manager.Reconcile(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Reconcile = %v, want ErrNotConnected", err)
	}

	// Nothing went out, so nothing may be marked active.
	if got := len(f.registry.Active()); got != 0 {
		t.Errorf("active channels = %d, failed send must not mark channels active", got)
	}
}

func TestManager_ReconcileBeforeConnectKeepsIntent(t *testing.T) {
	frames := make(chan []byte, 10)
	server := mockWSServer(t, echoServer(t, frames))
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	// Reconcile with no connection fails; the channel must stay pending.
	f.manager.SetDesired([]channel.Channel{channel.MarketQuote()})
	if err := f.manager.Reconcile(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Reconcile = %v, want ErrNotConnected", err)
	}

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	// The retry after connecting must put the subscribe on the wire.
	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile after connect failed: %v", err)
	}

	frame := recvFrame(t, frames)
	if frame.Action != ActionSubscribe {
		t.Errorf("action = %q, want SUBSCRIBE", frame.Action)
	}
	if len(frame.Channels) != 1 || frame.Channels[0] != "market.quote" {
		t.Errorf("channels = %v, want [market.quote]", frame.Channels)
	}
	if got := len(f.registry.Active()); got != 1 {
		t.Errorf("active channels = %d, want 1", got)
	}
}

func TestManager_UnsubscribeAll(t *testing.T) {
	frames := make(chan []byte, 10)
	server := mockWSServer(t, echoServer(t, frames))
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	f.manager.SetDesired([]channel.Channel{
		channel.MarketQuote(),
		channel.MarketOrderBook("005930"),
	})
	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	recvFrame(t, frames) // subscribe

	if err := f.manager.UnsubscribeAll(ctx); err != nil {
		t.Fatalf("UnsubscribeAll failed: %v", err)
	}

	frame := recvFrame(t, frames)
	if frame.Action != ActionUnsubscribe {
		t.Errorf("action = %q, want UNSUBSCRIBE", frame.Action)
	}
	if len(frame.Channels) != 2 {
		t.Errorf("channels = %v, want 2 entries", frame.Channels)
	}

	if got := len(f.registry.Active()); got != 0 {
		t.Errorf("active channels = %d, want 0", got)
	}
	if got := len(f.registry.Desired()); got != 2 {
		t.Errorf("desired channels = %d, desired intent must survive", got)
	}

	// Idempotent when nothing is active.
	if err := f.manager.UnsubscribeAll(ctx); err != nil {
		t.Errorf("second UnsubscribeAll failed: %v", err)
	}
}

func TestManager_BinaryFrameReachesStore(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.BinaryMessage, quoteFrame("005930", 100, 102, 42)); err != nil {
			return
		}
		// Garbage binary frame: logged and dropped, stream continues.
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0x00}); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, quoteFrame("000660", 88, 89, 43)); err != nil {
			return
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	waitFor(t, func() bool {
		_, ok := f.store.Get("000660")
		return ok
	}, "timeout waiting for quotes to reach the store")

	e, ok := f.store.Get("005930")
	if !ok {
		t.Fatal("expected store entry for 005930")
	}
	if math.Abs(e.Close-101) > 1e-6 {
		t.Errorf("Close = %v, want 101", e.Close)
	}
	if e.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", e.Timestamp)
	}

	stats := f.manager.Stats()
	if stats.BinaryFrames != 3 {
		t.Errorf("BinaryFrames = %d, want 3", stats.BinaryFrames)
	}
	if stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
}

func TestManager_LegacyTextFrameReachesStore(t *testing.T) {
	legacy := `{"messageType":1,"payload":[{"stockCd":"005930","bid":100,"ask":102,"bidSize":10,"askSize":20,"timestamp":42}]}`

	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(legacy)); err != nil {
			return
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	waitFor(t, func() bool {
		_, ok := f.store.Get("005930")
		return ok
	}, "timeout waiting for legacy quote to reach the store")

	e, _ := f.store.Get("005930")
	if math.Abs(e.Close-101) > 1e-6 {
		t.Errorf("Close = %v, want 101", e.Close)
	}

	if got := f.manager.Stats().LegacyFrames; got != 1 {
		t.Errorf("LegacyFrames = %d, want 1", got)
	}
}

func TestManager_ControlAckCounted(t *testing.T) {
	ack := `{"action":"SUBSCRIBE","id":"abc","channels":["market.quote"],"status":"OK"}`

	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	waitFor(t, func() bool {
		return f.manager.Stats().ControlAcks == 1
	}, "timeout waiting for control ack")
}

func TestManager_UnexpectedCloseForgetsActive(t *testing.T) {
	frames := make(chan []byte, 10)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Read one subscribe, then drop the connection.
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- data
		conn.Close()
	})
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	f.manager.SetDesired([]channel.Channel{channel.MarketQuote()})
	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	recvFrame(t, frames)

	waitFor(t, func() bool {
		return f.manager.State() == StateDisconnected
	}, "timeout waiting for close to be observed")

	if got := len(f.registry.Active()); got != 0 {
		t.Errorf("active channels = %d, server-side state is gone so active must be forgotten", got)
	}
	if got := len(f.registry.Desired()); got != 1 {
		t.Errorf("desired channels = %d, want 1", got)
	}
}

func TestManager_DisconnectDuringConnect(t *testing.T) {
	// Hold the upgrade until the test releases it, so Disconnect can land
	// while the dial is still in flight.
	release := make(chan struct{})
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}))
	defer server.Close()

	f := newManagerFixture(wsURL(server))

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.manager.Connect(context.Background())
	}()

	waitFor(t, func() bool {
		return f.manager.State() == StateConnecting
	}, "timeout waiting for connecting state")

	if err := f.manager.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectAborted) {
			t.Errorf("Connect = %v, want ErrConnectAborted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Connect to return")
	}

	if f.manager.State() != StateDisconnected {
		t.Errorf("state = %s, a dial finishing after Disconnect must not revive the connection", f.manager.State())
	}
}

func TestManager_Reconnect(t *testing.T) {
	server := mockWSServer(t, echoServer(t, nil))
	defer server.Close()

	f := newManagerFixture(wsURL(server))
	ctx := context.Background()

	if err := f.manager.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := f.manager.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if f.manager.State() != StateConnected {
		t.Errorf("state = %s, want connected", f.manager.State())
	}

	f.manager.Disconnect()
}
