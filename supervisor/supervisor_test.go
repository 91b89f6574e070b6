package supervisor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
	"cryptostream/stream"
)

// testExchange is a private ExchangeID used only by this test file's
// registered factories, so it never collides with a real exchange package.
const testExchange model.ExchangeID = "test_exchange"

type fakeConnector struct {
	maxStreams int
	urlErr     error
}

func (c *fakeConnector) URL([]model.Subscription) (string, error) {
	if c.urlErr != nil {
		return "", c.urlErr
	}
	return "wss://fake/ws", nil
}
func (c *fakeConnector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	reqs := make([]connector.Request, len(subs))
	for i, s := range subs {
		reqs[i] = connector.Request{Sub: s, ID: model.SubscriptionID("id"), Frame: []byte("sub"), Text: true}
	}
	return reqs, nil
}
func (c *fakeConnector) ExpectedAcks(subs []model.Subscription) connector.AckExpectation {
	return connector.AckExpectation{Count: len(subs)}
}
func (c *fakeConnector) Classify([]byte, bool) connector.Classified {
	return connector.Classified{Kind: connector.KindSubscribed}
}
func (c *fakeConnector) PingSchedule() *connector.PingSchedule { return nil }
func (c *fakeConnector) FatalCodes() map[string]struct{}       { return map[string]struct{}{} }
func (c *fakeConnector) MaxStreamsPerConnection() int          { return c.maxStreams }

type fakeTransformer struct{}

func (fakeTransformer) InstallRoute(model.SubscriptionID, model.Subscription) {}
func (fakeTransformer) Transform([]byte, time.Time) ([]model.MarketEvent, error) {
	return nil, nil
}

type fakeFactory struct {
	id   model.ExchangeID
	conn *fakeConnector
}

func (f fakeFactory) Exchange() model.ExchangeID        { return f.id }
func (f fakeFactory) NewConnector() connector.Connector { return f.conn }
func (f fakeFactory) NewTransformer() connector.Transformer {
	return fakeTransformer{}
}

func subsFor(ex model.ExchangeID, n int) []model.Subscription {
	out := make([]model.Subscription, n)
	for i := range out {
		out[i] = model.Subscription{
			Exchange:   ex,
			Instrument: model.NewInstrument("BTC", "USDT", model.Spot),
			Kind:       model.KindTrade,
		}
		// Kind alone would dedupe Key()s across a real session, but batch()
		// only groups by exchange+MaxStreamsPerConnection, which doesn't care.
	}
	return out
}

func TestBatchSplitsByMaxStreamsPerConnection(t *testing.T) {
	exchange.Register(fakeFactory{id: testExchange, conn: &fakeConnector{maxStreams: 2}})

	groups, err := batch(subsFor(testExchange, 5))
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	gs := groups[testExchange]
	if len(gs) != 3 {
		t.Fatalf("expected 3 groups (2+2+1), got %d", len(gs))
	}
	total := 0
	for _, g := range gs {
		total += len(g.subs)
	}
	if total != 5 {
		t.Fatalf("expected 5 subscriptions total across groups, got %d", total)
	}
}

func TestBatchErrorsOnUnregisteredExchange(t *testing.T) {
	_, err := batch(subsFor(model.ExchangeID("unregistered_exchange"), 1))
	if err == nil {
		t.Fatal("expected an error for an exchange with no registered factory")
	}
}

// fakeSocket satisfies stream.Socket without touching the network: it
// delivers one pre-seeded inbound frame (enough to satisfy a one-request
// handshake) and then blocks until closed.
type fakeSocket struct {
	mu     sync.Mutex
	in     chan []byte
	closed bool
}

func newFakeSocket(seed ...[]byte) *fakeSocket {
	s := &fakeSocket{in: make(chan []byte, len(seed)+1)}
	for _, b := range seed {
		s.in <- b
	}
	return s
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	b, ok := <-s.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, b, nil
}
func (s *fakeSocket) WriteMessage(int, []byte) error { return nil }
func (s *fakeSocket) SetReadDeadline(time.Time) error { return nil }
func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
}

func (d *fakeDialer) Dial(context.Context, string) (stream.Socket, error) {
	sock := newFakeSocket([]byte("ack"))
	d.mu.Lock()
	d.sockets = append(d.sockets, sock)
	d.mu.Unlock()
	return sock, nil
}

func (d *fakeDialer) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sockets {
		s.Close()
	}
}

// withFakeDialer swaps stream.DefaultDialer for the duration of one test,
// since Supervisor.Init always builds ExchangeStreams via stream.New, which
// defaults to stream.DefaultDialer.
func withFakeDialer(t *testing.T) *fakeDialer {
	t.Helper()
	d := &fakeDialer{}
	orig := stream.DefaultDialer
	stream.DefaultDialer = d
	t.Cleanup(func() {
		stream.DefaultDialer = orig
		d.closeAll()
	})
	return d
}

func TestSupervisorInitReturnsOneChannelPerGroup(t *testing.T) {
	withFakeDialer(t)
	id := model.ExchangeID("test_exchange_init_ok")
	exchange.Register(fakeFactory{id: id, conn: &fakeConnector{maxStreams: 1}})

	sv := New(stream.DefaultConfig(), rate.Inf, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chans, err := sv.Init(ctx, subsFor(id, 3))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := len(chans[id]); got != 3 {
		t.Fatalf("expected 3 channels (maxStreams=1, 3 subs), got %d", got)
	}
}

func TestSupervisorInitSurfacesFirstHandshakeErrorSynchronously(t *testing.T) {
	withFakeDialer(t)
	id := model.ExchangeID("test_exchange_init_fail")
	exchange.Register(fakeFactory{id: id, conn: &fakeConnector{maxStreams: 1, urlErr: errors.New("bad url")}})

	sv := New(stream.DefaultConfig(), rate.Inf, 1)
	_, err := sv.Init(context.Background(), subsFor(id, 1))
	if err == nil {
		t.Fatal("expected Init to surface the handshake error")
	}
}

func TestSupervisorInitPacesConnectionsWithTheRateLimiter(t *testing.T) {
	withFakeDialer(t)
	id := model.ExchangeID("test_exchange_rate_limited")
	exchange.Register(fakeFactory{id: id, conn: &fakeConnector{maxStreams: 1}})

	sv := New(stream.DefaultConfig(), rate.Every(50*time.Millisecond), 1)
	start := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := sv.Init(ctx, subsFor(id, 2)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected the second connection group to wait for a rate limiter token, elapsed only %s", elapsed)
	}
}
