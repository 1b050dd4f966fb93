package fakedaemon

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/protocol"
	"github.com/luma/sockrpc/storage"
	"github.com/luma/sockrpc/transport"
)

// Reply is what a HandlerFunc sends back for a request.
type Reply struct {
	// Type of the response, defaults to the request's command
	Type string

	Data  interface{}
	Error interface{}
}

// HandlerFunc answers a request. Returning nil sends no response at all.
type HandlerFunc func(ctx context.Context, req *protocol.Message) *Reply

type Options struct {
	// Address to listen on, see transport.ParseAddress
	Address string

	// Reuseport controls setting SO_REUSEPORT on tcp addresses
	Reuseport bool

	// Trace will log every frame. This is only useful in local debugging
	Trace bool

	// Store backs the get and set commands. Defaults to an in-memory store.
	Store storage.Store

	Log *zap.Logger
}

// Server is a daemon speaking the sockrpc protocol, for tests and local
// development. Handlers for individual commands can be swapped at any time.
type Server struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	options  Options
	listener net.Listener
	store    storage.Store

	mu          sync.Mutex
	handlers    map[string]HandlerFunc
	activeConns map[*transport.Conn]struct{}
	received    []*protocol.Message

	log *zap.Logger
}

func New(options Options) *Server {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	store := options.Store
	if store == nil {
		store = storage.NewInmemoryStore()
	}

	s := &Server{
		options:     options,
		store:       store,
		handlers:    make(map[string]HandlerFunc),
		activeConns: make(map[*transport.Conn]struct{}),
		log:         log,
	}

	s.registerBuiltins()

	return s
}

// Start begins listening. It returns once the listener is ready to accept
// connections.
func (s *Server) Start(parentCtx context.Context) error {
	listener, err := transport.Listen(transport.Options{
		Address:   s.options.Address,
		Reuseport: s.options.Reuseport,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.listener = listener

	s.log.Info("Listening", zap.String("address", s.Addr()))

	s.stopWaiter.Add(2)

	go func() {
		defer s.stopWaiter.Done()
		s.acceptLoop(ctx)
	}()

	// Listen for storage updates
	updates := s.store.ListenToUpdates()
	go func() {
		defer s.stopWaiter.Done()
		s.forwardUpdates(ctx, updates)
	}()

	return nil
}

// Addr returns the address clients should dial.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.options.Address
	}

	return transport.ListenerAddress(s.listener)
}

// Store returns the store backing get and set.
func (s *Server) Store() storage.Store {
	return s.store
}

// Close stops accepting connections, closes every active connection and
// waits for their loops to exit.
func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}

	s.log.Info("Stopping fake daemon")
	s.cancel()

	err := s.listener.Close()
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}

	s.DropConnections()
	s.stopWaiter.Wait()

	return err
}

// Handle replaces the handler for command.
func (s *Server) Handle(command string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[command] = handler
}

// Broadcast pushes an event to every connected client.
func (s *Server) Broadcast(eventType string, data interface{}) (err error) {
	frame, err := protocol.EncodeReply("", eventType, data, nil)
	if err != nil {
		return err
	}

	return s.BroadcastRaw(frame)
}

// BroadcastRaw writes frame, as-is, to every connected client.
func (s *Server) BroadcastRaw(frame []byte) (err error) {
	for _, conn := range s.conns() {
		if werr := conn.WriteFrame(frame); werr != nil {
			err = multierr.Append(err, werr)
		}
	}

	return err
}

// BroadcastBytes writes data to every connected client exactly as given,
// without adding a delimiter or enforcing the frame size bound.
func (s *Server) BroadcastBytes(data []byte) (err error) {
	for _, conn := range s.conns() {
		if _, werr := conn.Write(data); werr != nil {
			err = multierr.Append(err, werr)
		}
	}

	return err
}

// DropConnections closes every active connection, returning how many there were.
func (s *Server) DropConnections() int {
	conns := s.conns()

	for _, conn := range conns {
		conn.Close()
	}

	return len(conns)
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.activeConns)
}

// Received returns every request received so far, in arrival order.
func (s *Server) Received() []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*protocol.Message(nil), s.received...)
}

func (s *Server) acceptLoop(ctx context.Context) {
	var loopWaiter sync.WaitGroup
	defer loopWaiter.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				s.log.Info("Stopped accepting new connections")
				return
			}

			s.log.Warn("Failed to accept connection", zap.Error(err))
			continue
		}

		tconn := transport.NewConn(conn, transport.Options{
			Trace: s.options.Trace,
			Log:   s.log.Named("conn"),
		})
		s.addConn(tconn)

		loopWaiter.Add(1)
		go func() {
			defer loopWaiter.Done()
			defer s.removeConn(tconn)
			s.serveConn(ctx, tconn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn *transport.Conn) {
	log := s.log.Named("readLoop")
	defer conn.Close()

	// Handlers get a context that ends with the connection
	connCtx, cancel := context.WithCancel(ctx)

	var handlerWaiter sync.WaitGroup
	defer handlerWaiter.Wait()
	defer cancel()

	stop := context.AfterFunc(connCtx, func() { conn.Close() })
	defer stop()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			log.Debug("Client connection ended", zap.Error(err))
			return
		}

		req, err := protocol.ParseMessage(frame)
		if err != nil {
			log.Warn("Failed to parse client request", zap.ByteString("frame", frame), zap.Error(err))
			continue
		}

		if req.IsEvent() {
			log.Warn("Ignoring client request without an id", zap.String("type", req.Type))
			continue
		}

		handler := s.record(req)

		// Requests are answered concurrently, so responses can come back
		// in a different order than the requests arrived
		handlerWaiter.Add(1)
		go func() {
			defer handlerWaiter.Done()
			s.respond(connCtx, log, conn, req, handler)
		}()
	}
}

func (s *Server) respond(ctx context.Context, log *zap.Logger, conn *transport.Conn, req *protocol.Message, handler HandlerFunc) {
	var reply *Reply
	if handler == nil {
		reply = &Reply{
			Type: protocol.UnexpectedErrorType,
			Data: map[string]string{"message": "unknown command " + req.Type},
		}
	} else {
		reply = handler(ctx, req)
	}

	if reply == nil {
		return
	}

	replyType := reply.Type
	if replyType == "" {
		replyType = req.Type
	}

	frame, err := protocol.EncodeReply(req.ID, replyType, reply.Data, reply.Error)
	if err != nil {
		log.Error("Failed to encode reply", zap.String("requestID", req.ID), zap.Error(err))
		return
	}

	if err := conn.WriteFrame(frame); err != nil {
		log.Warn("Failed to write reply", zap.String("requestID", req.ID), zap.Error(err))
	}
}

func (s *Server) forwardUpdates(ctx context.Context, updates <-chan *storage.Update) {
	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-updates:
			if !ok {
				return
			}

			data := map[string]interface{}{
				"key":   update.Key,
				"value": rawJSON(update.Value),
			}

			if err := s.Broadcast(protocol.UpdateEvent, data); err != nil {
				s.log.Warn("Failed to broadcast update", zap.String("key", update.Key), zap.Error(err))
			}
		}
	}
}

// record stores req and returns the handler for it.
func (s *Server) record(req *protocol.Message) HandlerFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, req)
	return s.handlers[req.Type]
}

func (s *Server) conns() []*transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*transport.Conn, 0, len(s.activeConns))
	for conn := range s.activeConns {
		conns = append(conns, conn)
	}

	return conns
}

func (s *Server) addConn(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeConns[conn] = struct{}{}
}

func (s *Server) removeConn(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.activeConns, conn)
}
