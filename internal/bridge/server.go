package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/discovery"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/transport"
	"github.com/muurk/coopdoor/internal/version"
)

const (
	// radioPoll bounds each radio read so the relay notices a departed
	// client promptly
	radioPoll = 100 * time.Millisecond

	shutdownTimeout = 5 * time.Second
)

// Config holds the bridge configuration
type Config struct {
	Addr      string // Listen address, e.g. ":8765"
	ID        string // Door/bridge identifier used for mDNS
	Advertise bool   // Publish the bridge over mDNS

	Logger  *zap.Logger
	Metrics *metrics.BridgeMetrics

	// MetricsHandler is mounted at /metrics when set
	MetricsHandler http.Handler
}

// Server exposes a local radio to one remote controller over WebSocket
type Server struct {
	config   Config
	radio    transport.Transport
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	adv        *discovery.Advertisement

	wg     sync.WaitGroup
	mu     sync.Mutex
	client *transport.WebSocketTransport
	remote string
}

// New creates a bridge for radio. The bridge owns radio while running.
func New(radio transport.Transport, config Config) *Server {
	s := &Server{
		config: config,
		radio:  radio,
		logger: logging.OrDefault(config.Logger, "bridge"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
			// Controllers are CLI tools, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes served by the bridge
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(discovery.DefaultPath, s.handleRadio)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.config.MetricsHandler != nil {
		mux.Handle("/metrics", s.config.MetricsHandler)
	}
	return mux
}

// Start listens on the configured address and serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener

	s.logger.Info("Radio bridge listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", discovery.DefaultPath),
	)

	if s.config.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(s.config.ID, port, map[string]string{"version": version.Version})
		if err != nil {
			// The bridge still works when dialled directly
			s.logger.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.adv = adv
			s.logger.Info("Advertising over mDNS",
				zap.String("instance", discovery.InstancePrefix+s.config.ID),
				zap.String("service", discovery.ServiceType),
			)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listening address, or nil before Serve
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the bridge and disconnects the client
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down radio bridge...")

	s.adv.Shutdown()

	err := s.httpServer.Shutdown(ctx)

	// Hijacked WebSocket connections are not closed by http.Server
	s.mu.Lock()
	if s.client != nil {
		s.logger.Info("Closing client connection", zap.String("remote_addr", s.remote))
		_ = s.client.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Radio bridge stopped")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing close")
	}

	return err
}

// Connected reports whether a controller currently owns the radio
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok clients=" + strconv.Itoa(s.clientCount()) + "\n"))
}

func (s *Server) clientCount() int {
	if s.Connected() {
		return 1
	}
	return 0
}

// handleRadio upgrades the request and relays frames until either side
// goes away. Only one client may own the radio at a time.
func (s *Server) handleRadio(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.client != nil {
		owner := s.remote
		s.mu.Unlock()
		s.logger.Warn("Rejecting second client, radio in use",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("owner", owner),
		)
		if s.config.Metrics != nil {
			s.config.Metrics.Rejected.Inc()
		}
		http.Error(w, "radio in use by "+owner, http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.mu.Unlock()
		// Upgrade has already written an HTTP error
		s.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := transport.NewWebSocketTransport(conn, s.logger.Named("client"))
	s.client = client
	s.remote = r.RemoteAddr
	s.wg.Add(1)
	s.mu.Unlock()

	if s.config.Metrics != nil {
		s.config.Metrics.Clients.Set(1)
	}
	s.logger.Info("Controller connected", zap.String("remote_addr", r.RemoteAddr))

	defer func() {
		_ = client.Close()
		s.mu.Lock()
		s.client = nil
		s.remote = ""
		s.mu.Unlock()
		if s.config.Metrics != nil {
			s.config.Metrics.Clients.Set(0)
		}
		s.logger.Info("Controller disconnected", zap.String("remote_addr", r.RemoteAddr))
		s.wg.Done()
	}()

	s.relay(client)
}

// relay copies frames in both directions until the client disconnects or
// the radio fails
func (s *Server) relay(client *transport.WebSocketTransport) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-client.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	// client -> radio
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			frame, err := client.Receive(ctx, time.Second)
			if err != nil {
				if transport.IsTimeout(err) {
					continue
				}
				return
			}
			logging.LogRawBytes(s.logger, "Relaying frame to radio", frame)
			if err := s.radio.Send(ctx, frame); err != nil {
				if ctx.Err() == nil {
					s.logger.Error("Radio send failed", zap.Error(err))
				}
				return
			}
			s.count("to_radio")
		}
	}()

	// radio -> client
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			frame, err := s.radio.Receive(ctx, radioPoll)
			if err != nil {
				if transport.IsTimeout(err) {
					continue
				}
				if ctx.Err() == nil {
					s.logger.Error("Radio receive failed", zap.Error(err))
				}
				return
			}
			logging.LogRawBytes(s.logger, "Relaying frame to client", frame)
			if err := client.Send(ctx, frame); err != nil {
				return
			}
			s.count("to_client")
		}
	}()

	wg.Wait()
}

func (s *Server) count(direction string) {
	if s.config.Metrics != nil {
		s.config.Metrics.FramesRelayed.WithLabelValues(direction).Inc()
	}
}
