package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/protocol"
	"github.com/luma/sockrpc/transport"
)

const DefaultReconnectDelay = 5 * time.Second

type Options struct {
	// Address of the daemon's socket. A bare path is a unix socket, see
	// transport.ParseAddress for other forms.
	Address string

	// ReconnectDelay is how long to wait after a failed connection attempt,
	// or after losing a connection, before trying again. Defaults to
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// DialTimeout bounds a single connection attempt
	DialTimeout time.Duration

	// Trace logs every frame sent and received
	Trace bool

	// Log defaults to the global zap logger, named "sockrpc"
	Log *zap.Logger

	// Metrics defaults to NopMetrics
	Metrics Metrics
}

// connectedSignal is closed once the connection for its generation is up.
type connectedSignal struct {
	generation uint64
	done       chan struct{}
	once       sync.Once
}

func newConnectedSignal(generation uint64) *connectedSignal {
	return &connectedSignal{
		generation: generation,
		done:       make(chan struct{}),
	}
}

func (s *connectedSignal) resolve() {
	s.once.Do(func() { close(s.done) })
}

// Client keeps one connection to the daemon alive, reconnecting whenever it
// drops, and matches responses to the requests that caused them.
type Client struct {
	transport      transport.Options
	reconnectDelay time.Duration

	registry *Registry
	events   *Dispatcher
	metrics  Metrics

	// lifecycleMu serializes starting and stopping the connection loop
	lifecycleMu sync.Mutex

	mu         sync.Mutex
	conn       *transport.Conn
	connected  bool
	generation uint64
	signal     *connectedSignal
	cancel     context.CancelFunc
	loopDone   chan struct{}

	log *zap.Logger
}

func New(options Options) *Client {
	log := options.Log
	if log == nil {
		log = zap.L().Named("sockrpc")
	}

	metrics := options.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	delay := options.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	c := &Client{
		transport: transport.Options{
			Address:     options.Address,
			DialTimeout: options.DialTimeout,
			Trace:       options.Trace,
			Log:         log.Named("transport"),
		},
		reconnectDelay: delay,
		registry:       NewRegistry(log.Named("registry")),
		events:         NewDispatcher(log.Named("events"), metrics),
		metrics:        metrics,
		signal:         newConnectedSignal(1),
		log:            log,
	}

	// Must stay the first disconnect handler, so in-flight requests fail
	// before anything else reacts to the disconnect
	c.events.AddHandler(protocol.DisconnectedEvent, HandlerFunc(c.abandonResponses))

	return c
}

// AddEventHandler registers handler for events of the given type, including
// protocol.ConnectedEvent and protocol.DisconnectedEvent.
//
// Connect and disconnect handlers run on the connection loop, which waits for
// them before reconnecting. They must not call Disconnect directly, that
// waits for the loop and never returns. Call it from a new goroutine instead.
func (c *Client) AddEventHandler(event string, handler Handler) HandlerID {
	return c.events.AddHandler(event, handler)
}

func (c *Client) RemoveEventHandler(event string, id HandlerID) bool {
	return c.events.RemoveHandler(event, id)
}

// IsConnected returns true while a connection to the daemon is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Generation returns the number of connections established so far.
func (c *Client) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	return c.registry.Len()
}

// Connect starts the background connection loop, if it is not already
// running, and waits until a connection is established or ctx ends. The
// loop keeps trying to connect after ctx ends, call Disconnect to stop it.
func (c *Client) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	c.mu.Lock()

	if c.connected {
		c.mu.Unlock()
		c.lifecycleMu.Unlock()
		return nil
	}

	signal := c.signal

	if c.loopDone == nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		loopDone := make(chan struct{})

		c.cancel = cancel
		c.loopDone = loopDone

		c.log.Info("Connecting to daemon", zap.String("address", c.transport.Address))

		go func() {
			defer close(loopDone)
			c.communicateForever(loopCtx)
		}()
	}

	c.mu.Unlock()
	c.lifecycleMu.Unlock()

	select {
	case <-signal.done:
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForConnected returns true once a connection is established. It gives
// up after timeout, or when ctx ends, and then returns false. A timeout of
// zero or less waits indefinitely.
func (c *Client) WaitForConnected(ctx context.Context, timeout time.Duration) bool {
	c.mu.Lock()
	connected, signal := c.connected, c.signal
	c.mu.Unlock()

	if connected {
		return true
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-signal.done:
		return c.IsConnected()

	case <-expired:
		return false

	case <-ctx.Done():
		return false
	}
}

// Disconnect closes the connection and stops the connection loop. Requests
// still awaiting a response fail with a NotConnectedError. A Connect issued
// while Disconnect runs waits for it and then starts a new loop.
func (c *Client) Disconnect() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	conn, cancel, loopDone := c.conn, c.cancel, c.loopDone
	c.mu.Unlock()

	if loopDone == nil {
		return nil
	}

	var err error
	if conn != nil {
		if err = conn.CloseWrite(); err != nil && transport.IsClosedError(err) {
			err = nil
		}
	}

	cancel()
	<-loopDone

	// runConnection already cleared the connection state on its way out
	c.mu.Lock()
	c.cancel = nil
	c.loopDone = nil
	c.mu.Unlock()

	c.log.Info("Disconnected from daemon")

	return err
}

func (c *Client) communicateForever(ctx context.Context) {
	log := c.log.Named("connection")

	for {
		conn, err := transport.Dial(ctx, c.transport)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.Error("Connection to daemon failed",
				zap.String("address", c.transport.Address),
				zap.Duration("retryIn", c.reconnectDelay),
				zap.Error(err))

			if !sleep(ctx, c.reconnectDelay) {
				return
			}
			continue
		}

		stopped := c.runConnection(ctx, log, conn)
		if stopped {
			return
		}

		c.metrics.Reconnected()
		log.Info("Lost connection to daemon, reconnecting",
			zap.Duration("delay", c.reconnectDelay))

		if !sleep(ctx, c.reconnectDelay) {
			return
		}
	}
}

// runConnection drives one connection generation from connect to
// disconnect. It returns true if the connection ended because ctx did.
func (c *Client) runConnection(ctx context.Context, log *zap.Logger, conn *transport.Conn) bool {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.generation++
	generation := c.generation
	signal := c.signal
	c.mu.Unlock()

	log.Debug("Connection to daemon succeeded",
		zap.String("address", c.transport.Address),
		zap.Uint64("generation", generation))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop(ctx, conn, generation)
	}()

	c.metrics.SetConnected(true)
	c.events.Dispatch(ctx, protocol.ConnectedEvent, protocol.NewEvent(protocol.ConnectedEvent))
	signal.resolve()

	stopped := false
	select {
	case <-readDone:
	case <-ctx.Done():
		stopped = true
	}

	conn.Close()
	<-readDone

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connected = false
	c.signal = newConnectedSignal(generation + 1)
	c.mu.Unlock()

	c.metrics.SetConnected(false)

	// Disconnect handlers run even when ctx is the reason we disconnected
	c.events.Dispatch(context.WithoutCancel(ctx), protocol.DisconnectedEvent, protocol.NewEvent(protocol.DisconnectedEvent))

	return stopped
}

func (c *Client) readLoop(ctx context.Context, conn *transport.Conn, generation uint64) {
	log := c.log.Named("readLoop").With(zap.Uint64("generation", generation))

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("Reader disconnected")
			case transport.IsClosedError(err):
				log.Debug("Connection closed")
			default:
				log.Error("Fatal error in read loop", zap.Error(err))
			}
			return
		}

		c.handleFrame(ctx, log, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, log *zap.Logger, frame []byte) {
	if len(frame) == 0 {
		return
	}

	msg, err := protocol.ParseMessage(frame)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidUTF8) {
			log.Warn("Got non-unicode data from daemon", zap.Binary("frame", frame))
		} else {
			log.Debug("Got invalid data from daemon", zap.ByteString("frame", frame), zap.Error(err))
		}
		return
	}

	if msg.IsEvent() {
		go c.events.Dispatch(ctx, msg.Type, msg)
		return
	}

	id, err := uuid.Parse(msg.ID)
	if err != nil {
		log.Debug("Got response with an invalid request id",
			zap.String("requestID", msg.ID),
			zap.String("type", msg.Type))
		return
	}

	c.registry.Resolve(id, msg)
}

// currentConn returns the open connection and its generation, or nil.
func (c *Client) currentConn() (*transport.Conn, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn, c.generation
}

func (c *Client) abandonResponses(ctx context.Context, msg *protocol.Message) error {
	if n := c.registry.AbandonAll("Disconnected from daemon before request completed"); n > 0 {
		c.log.Info("Abandoned pending requests", zap.Int("count", n))
	}

	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
