package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agenthub/internal/domain"
	"agenthub/internal/infra/middleware"
)

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	userID    string
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the WebSocket gateway that pushes events to connected
// clients. Implements domain.Notifier: pushes are fire-and-forget, and a
// client whose queue is full loses the frame rather than stalling the
// emitter.
type Server struct {
	auth      Authenticator
	logger    *slog.Logger
	addr      string
	rateRPM   int
	rateBurst int

	clients   sync.Map // connID (uint64) -> *clientConn
	nextID    atomic.Uint64
	httpSrv   *http.Server
	boundAddr string
	cancelMW  context.CancelFunc
}

// NewServer creates a gateway server. rateRPM and rateBurst bound the
// per-IP upgrade rate; zero values disable limiting.
func NewServer(auth Authenticator, addr string, rateRPM, rateBurst int, logger *slog.Logger) *Server {
	return &Server{
		auth:      auth,
		logger:    logger,
		addr:      addr,
		rateRPM:   rateRPM,
		rateBurst: rateBurst,
	}
}

// Start begins accepting WebSocket connections. Blocks until the context
// is canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	mwCtx, cancel := context.WithCancel(context.Background())
	s.cancelMW = cancel

	var wsHandler http.Handler = http.HandlerFunc(s.handleUpgrade)
	if s.rateRPM > 0 {
		wsHandler = middleware.RateLimit(mwCtx, s.rateRPM, s.rateBurst)(wsHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		cancel()
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{Handler: middleware.SecurityHeaders(mux)}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancelMW != nil {
		s.cancelMW()
	}

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// Notify pushes an event frame to every connection owned by userID.
// Connections of other users never see the frame.
func (s *Server) Notify(userID string, event domain.EventType, payload json.RawMessage) {
	frame := Frame{Event: event, Payload: payload, Time: time.Now().UTC()}
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		if cc.userID != userID {
			return true
		}
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("gateway: dropped event for slow client", "user", userID, "event", string(event))
		}
		return true
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Authenticate via query param.
	token := r.URL.Query().Get("token")
	userID, err := s.auth.Authenticate(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		userID: userID,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "user", userID)

	go s.writeLoop(cc)

	// Read loop (blocking). Inbound frames are discarded; reading keeps
	// pings flowing and detects the close handshake.
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID, "user", userID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var discard json.RawMessage
		if err := wsjson.Read(ctx, cc.ws, &discard); err != nil {
			return // connection closed or error
		}
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
