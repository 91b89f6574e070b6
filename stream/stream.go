// Package stream drives one supervised WebSocket connection: the
// subscribe handshake, steady-state frame classification and transform,
// liveness monitoring, and reconnect-with-backoff. One ExchangeStream owns
// exactly one socket, one Transformer, and the sender half of its
// outbound event channel, matching the teacher's one-goroutine-per-reader
// idiom from internal/reader/*.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"cryptostream/connector"
	"cryptostream/internal/metrics"
	"cryptostream/logger"
	"cryptostream/model"
)

// State is the ExchangeStream's current lifecycle phase.
type State int

const (
	Init State = iota
	Connecting
	Subscribing
	Active
	Reconnecting
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExchangeStream is the per-connection driver for one (exchange,
// connection-group) batch of subscriptions.
type ExchangeStream struct {
	exchange    model.ExchangeID
	subs        []model.Subscription
	conn        connector.Connector
	transformer connector.Transformer
	cfg         Config
	dialer      Dialer
	log         *logger.Entry

	out   chan model.MarketEvent
	state State
	gen   uint64

	// activeSock/activeFrames bridge a successful Init handshake into the
	// first Run iteration without reconnecting immediately.
	activeSock   Socket
	activeFrames chan rawFrame
}

// New builds an ExchangeStream for one batch of subscriptions against one
// exchange's Connector/Transformer pair. The batch must already satisfy
// that Connector's MaxStreamsPerConnection (the Supervisor's job).
func New(exchangeID model.ExchangeID, subs []model.Subscription, conn connector.Connector, tr connector.Transformer, cfg Config) *ExchangeStream {
	return &ExchangeStream{
		exchange:    exchangeID,
		subs:        subs,
		conn:        conn,
		transformer: tr,
		cfg:         cfg,
		dialer:      DefaultDialer,
		log:         logger.GetLogger().WithComponent("exchange_stream").WithFields(logger.Fields{"exchange": string(exchangeID)}),
		out:         make(chan model.MarketEvent, cfg.ChannelCapacity),
		state:       Init,
	}
}

// WithDialer overrides the Dialer; used by tests to point at a fake peer.
func (s *ExchangeStream) WithDialer(d Dialer) *ExchangeStream {
	s.dialer = d
	return s
}

// Events returns the receive side of this stream's outbound channel. The
// Supervisor/Multiplexer hold only this half; ExchangeStream retains the
// sender for its lifetime.
func (s *ExchangeStream) Events() <-chan model.MarketEvent { return s.out }

// State reports the current lifecycle phase.
func (s *ExchangeStream) State() State { return s.state }

// rawFrame is one inbound WebSocket frame handed from the reader goroutine
// to the driver goroutine, or a terminal read error.
type rawFrame struct {
	data []byte
	err  error
}

// Init performs the first connect and subscribe handshake synchronously,
// matching spec §4.5: Supervisor.Init reports per-exchange init errors
// immediately. On success the caller should invoke Run to drive steady
// state; on failure Run is never entered and State stays Failed.
func (s *ExchangeStream) Init(ctx context.Context) error {
	sock, frames, err := s.connectAndSubscribe(ctx)
	if err != nil {
		s.state = Failed
		return err
	}
	s.activeSock = sock
	s.activeFrames = frames
	s.state = Active
	return nil
}

// Run drives steady state until ctx is canceled or the stream reaches a
// terminal Failed state (auth/ban/malformed-sub). It reconnects
// automatically on transport failures and liveness timeouts. Init must be
// called and must have succeeded before Run is called.
func (s *ExchangeStream) Run(ctx context.Context) error {
	defer close(s.out)
	sock, frames := s.activeSock, s.activeFrames
	boff := newReconnectBackoff(s.cfg.ReconnectBaseMS, s.cfg.ReconnectCapMS)
	// The backoff sequence resets only after a connection has stayed
	// Active for this long.
	const stableActive = 60 * time.Second
	activeSince := time.Now()
	var err error

	for {
		if sock != nil {
			err = s.runActive(ctx, sock, frames)
			sock.Close()
			if time.Since(activeSince) >= stableActive {
				boff.Reset()
			}
		}
		if ctx.Err() != nil {
			s.state = Closed
			return nil
		}
		if errors.Is(err, errFatal) {
			s.state = Failed
			return err
		}

		s.state = Reconnecting
		s.gen++
		metrics.IncReconnect(string(s.exchange))
		s.out <- model.MarketEvent{
			Exchange: s.exchange,
			Payload: model.Reconnected{
				Connection:  model.ConnectionID{Exchange: s.exchange, Generation: s.gen},
				DroppedSubs: s.subs,
			},
		}

		delay := boff.NextBackOff()
		s.log.WithError(err).WithFields(logger.Fields{"delay_ms": delay.Milliseconds()}).Warn("reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.state = Closed
			return nil
		}

		sock, frames, err = s.connectAndSubscribe(ctx)
		if err != nil {
			if errors.Is(err, errFatal) {
				s.state = Failed
				return err
			}
			// Transport/protocol failure during reconnect: keep retrying
			// with the same backoff sequence rather than unwinding.
			sock, frames = nil, nil
			continue
		}
		activeSince = time.Now()
		s.state = Active
	}
}

// errFatal wraps an underlying cause to signal a terminal Failed
// transition (fatal ExchangeError code, SubscribeRejected, ProtocolViolation).
var errFatal = errors.New("stream: fatal")

func fatalf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, errFatal)...)
}

// connectAndSubscribe performs Connecting + Subscribing: dial, send every
// subscribe request, and wait for acks per the Connector's
// ExpectedAcks. Data frames arriving before Active are buffered
// (bounded, drop-oldest) and drained by the caller into runActive.
func (s *ExchangeStream) connectAndSubscribe(ctx context.Context) (Socket, chan rawFrame, error) {
	s.state = Connecting
	url, err := s.conn.URL(s.subs)
	if err != nil {
		return nil, nil, fmt.Errorf("stream: resolve url: %w", err)
	}
	sock, err := s.dialer.Dial(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrTransport, err)
	}

	frames := make(chan rawFrame, 1)
	go readLoop(sock, frames)

	s.state = Subscribing
	reqs, err := s.conn.Requests(s.subs)
	if err != nil {
		sock.Close()
		return nil, nil, fmt.Errorf("stream: build requests: %w", err)
	}
	for _, r := range reqs {
		if r.Frame == nil {
			continue
		}
		mt := websocket.BinaryMessage
		if r.Text {
			mt = websocket.TextMessage
		}
		if err := sock.WriteMessage(mt, r.Frame); err != nil {
			sock.Close()
			return nil, nil, fmt.Errorf("%w: %v", model.ErrTransport, err)
		}
	}
	for _, r := range reqs {
		s.transformer.InstallRoute(r.ID, r.Sub)
	}

	expect := s.conn.ExpectedAcks(s.subs)
	buffered := newRingBuffer(s.cfg.SubscribeBufferCap)
	acked := 0
	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()

	for acked < expect.Count {
		select {
		case <-ctx.Done():
			sock.Close()
			return nil, nil, ctx.Err()
		case <-deadline.C:
			sock.Close()
			return nil, nil, fatalf("%w: subscribe ack timeout", model.ErrProtocolViolation)
		case rf := <-frames:
			if rf.err != nil {
				sock.Close()
				return nil, nil, fmt.Errorf("%w: %v", model.ErrTransport, rf.err)
			}
			cl := s.conn.Classify(rf.data, true)
			switch cl.Kind {
			case connector.KindSubscribed:
				if expect.Predicate == nil || expect.Predicate(cl) {
					acked++
				}
			case connector.KindExchangeError:
				sock.Close()
				return nil, nil, fatalf("%w: %s %s", model.ErrSubscribeRejected, cl.Code, cl.Message)
			case connector.KindData:
				buffered.push(rf.data)
			default:
				// ping/pong/unknown frames during handshake are ignored.
			}
		}
	}

	// Replay anything buffered during the handshake window through a
	// synthetic frames channel so runActive drains it first.
	replay := make(chan rawFrame, buffered.len()+1)
	for _, f := range buffered.drain() {
		replay <- rawFrame{data: f}
	}
	merged := mergeFrames(replay, frames)
	return sock, merged, nil
}

// mergeFrames drains `first` to completion, then forwards everything from
// `rest` until it closes.
func mergeFrames(first, rest chan rawFrame) chan rawFrame {
	out := make(chan rawFrame, cap(rest))
	go func() {
		for len(first) > 0 {
			out <- <-first
		}
		for f := range rest {
			out <- f
		}
	}()
	return out
}

func readLoop(sock Socket, out chan<- rawFrame) {
	defer close(out)
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			out <- rawFrame{err: err}
			return
		}
		out <- rawFrame{data: data}
	}
}

// runActive drives the Active state: classify every inbound frame,
// transform Data frames, answer Pings, reset the liveness deadline on any
// traffic, and send the configured client keepalive if the Connector
// requires one.
func (s *ExchangeStream) runActive(ctx context.Context, sock Socket, frames chan rawFrame) error {
	liveness := time.NewTimer(s.cfg.livenessTimeout())
	defer liveness.Stop()

	var pingTicker *time.Ticker
	schedule := s.conn.PingSchedule()
	if schedule != nil {
		pingTicker = time.NewTicker(schedule.Interval)
		defer pingTicker.Stop()
	}
	var pingChan <-chan time.Time
	if pingTicker != nil {
		pingChan = pingTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-liveness.C:
			return model.ErrLiveness
		case <-pingChan:
			if err := sock.WriteMessage(websocket.TextMessage, schedule.Payload()); err != nil {
				return fmt.Errorf("%w: %v", model.ErrTransport, err)
			}
		case rf, ok := <-frames:
			if !ok {
				return model.ErrDisconnected
			}
			if rf.err != nil {
				return fmt.Errorf("%w: %v", model.ErrDisconnected, rf.err)
			}
			liveness.Reset(s.cfg.livenessTimeout())
			if err := s.handleFrame(sock, rf.data); err != nil {
				if errors.Is(err, errFatal) {
					return err
				}
				s.log.WithError(err).Debug("dropping frame")
			}
		}
	}
}

func (s *ExchangeStream) handleFrame(sock Socket, data []byte) error {
	cl := s.conn.Classify(data, true)
	switch cl.Kind {
	case connector.KindPing:
		return sock.WriteMessage(websocket.TextMessage, cl.Payload)
	case connector.KindPong:
		return nil
	case connector.KindExchangeError:
		if _, fatal := s.conn.FatalCodes()[cl.Code]; fatal {
			return fatalf("exchange error %s: %s", cl.Code, cl.Message)
		}
		s.publish(model.MarketEvent{
			Exchange:   s.exchange,
			ReceivedAt: time.Now(),
			Payload:    model.ExchangeError{Code: cl.Code, Message: cl.Message},
		})
		return nil
	case connector.KindSubscribed:
		return nil
	case connector.KindData:
		receivedAt := time.Now()
		events, err := s.transformer.Transform(cl.Raw, receivedAt)
		if err != nil {
			if errors.Is(err, model.ErrUnknownSubscription) {
				metrics.IncUnknownSubscription(string(s.exchange))
			} else if errors.Is(err, model.ErrParse) {
				metrics.IncParseError(string(s.exchange))
			}
			return err
		}
		for _, ev := range events {
			s.publish(ev)
		}
		return nil
	default:
		return nil
	}
}

// publish applies the configured OnFull policy when the outbound channel
// has no free capacity.
func (s *ExchangeStream) publish(ev model.MarketEvent) {
	switch s.cfg.OnFull {
	case Block:
		s.out <- ev
	case DropNewest:
		select {
		case s.out <- ev:
		default:
			metrics.IncDroppedFrame(string(s.exchange))
		}
	case DropOldest:
		for {
			select {
			case s.out <- ev:
				return
			default:
				select {
				case <-s.out:
					metrics.IncDroppedFrame(string(s.exchange))
				default:
				}
			}
		}
	}
}

// ringBuffer is a bounded drop-oldest byte-slice queue used to buffer Data
// frames that arrive during the Subscribing window.
type ringBuffer struct {
	cap int
	buf [][]byte
}

func newRingBuffer(capacity int) *ringBuffer { return &ringBuffer{cap: capacity} }

func (r *ringBuffer) push(b []byte) {
	r.buf = append(r.buf, b)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

func (r *ringBuffer) len() int { return len(r.buf) }

func (r *ringBuffer) drain() [][]byte {
	out := r.buf
	r.buf = nil
	return out
}
