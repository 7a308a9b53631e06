package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/config"
	"github.com/muurk/coopdoor/internal/discovery"
	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/logging"
	"github.com/muurk/coopdoor/internal/metrics"
	"github.com/muurk/coopdoor/internal/protocol"
	"github.com/muurk/coopdoor/internal/responder"
	"github.com/muurk/coopdoor/internal/transport"
)

// applyRadioFlag interprets --radio: "sim", a ws:// URL or a serial port
func applyRadioFlag(c *config.Config, v string) {
	switch {
	case v == config.RadioSim:
		c.Radio.Kind = config.RadioSim
	case strings.HasPrefix(v, "ws://") || strings.HasPrefix(v, "wss://"):
		c.Radio.Kind = config.RadioWebSocket
		c.Radio.URL = v
	default:
		c.Radio.Kind = config.RadioSerial
		c.Radio.Port = v
	}
}

// simOptions shapes the simulated radio and door
type simOptions struct {
	Loss transport.LossyOptions
	Jam  bool // the simulated door stalls and stays where it started
}

// radio is an open transport plus whatever has to stop with it
type radio struct {
	transport.Transport
	Describe string

	// Set for the simulated radio only
	Door     *responder.SimulatedActuator
	Uplink   *transport.Lossy // controller to door
	Downlink *transport.Lossy // door to controller

	stop func()
}

// Close closes the transport and stops any simulated door
func (r *radio) Close() error {
	err := r.Transport.Close()
	if r.stop != nil {
		r.stop()
	}
	return err
}

// openRadio opens the transport selected by c.Radio
func openRadio(ctx context.Context, c *config.Config, sim simOptions) (*radio, error) {
	logger := logging.Named("radio")

	switch c.Radio.Kind {
	case config.RadioSerial:
		t, err := transport.OpenSerial(transport.SerialConfig{Port: c.Radio.Port, BaudRate: c.Radio.Baud}, logger)
		if err != nil {
			return nil, err
		}
		return &radio{Transport: t, Describe: fmt.Sprintf("%s @ %d baud", c.Radio.Port, c.Radio.Baud)}, nil

	case config.RadioWebSocket:
		url := c.Radio.URL
		if url == "" {
			scanner := discovery.NewScanner()
			b, err := scanner.Find(ctx, c.Device.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to find radio bridge: %w", err)
			}
			url = b.WebSocketURL()
			logger.Info("Found radio bridge", zap.String("bridge", b.String()), zap.String("url", url))
		}
		t, err := transport.DialWebSocket(ctx, url, logger)
		if err != nil {
			return nil, err
		}
		return &radio{Transport: t, Describe: url}, nil

	case config.RadioSim:
		return openSimRadio(c, sim), nil

	default:
		return nil, fmt.Errorf("unknown radio kind %q", c.Radio.Kind)
	}
}

// openSimRadio runs a simulated door behind an in-memory radio. Loss is
// applied independently in each direction.
func openSimRadio(c *config.Config, sim simOptions) *radio {
	ctrlEnd, doorEnd := transport.Pipe()

	downOpts := sim.Loss
	downOpts.Seed = sim.Loss.Seed + 1
	// Scripted losses apply to commands only
	downOpts.DropFirst, downOpts.CorruptFirst = 0, 0

	up := transport.NewLossy(ctrlEnd, sim.Loss)
	down := transport.NewLossy(doorEnd, downOpts)

	initial := protocol.ReportedClosed
	if c.InitialState() == door.Open {
		initial = protocol.ReportedOpen
	}
	actuator := responder.NewSimulatedActuator(initial, c.Responder.Travel)
	actuator.Jam(sim.Jam)

	resp := responder.New(down, actuator, responder.Options{
		AckTimeout:     c.Responder.AckTimeout,
		MaxAckAttempts: c.Responder.MaxAckAttempts,
		ReplayWindow:   c.Responder.ReplayWindow,
		Logger:         logging.Named("sim-door"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := resp.Run(ctx); err != nil {
			logging.Warn("Simulated door stopped", zap.Error(err))
		}
	}()

	return &radio{
		Transport: up,
		Describe:  fmt.Sprintf("simulated (drop %.0f%%, corrupt %.0f%%)", sim.Loss.DropRate*100, sim.Loss.CorruptRate*100),
		Door:      actuator,
		Uplink:    up,
		Downlink:  down,
		stop: func() {
			cancel()
			_ = doorEnd.Close()
			wg.Wait()
		},
	}
}

// serveMetrics exposes the registry on addr until ctx is done. An empty
// addr does nothing.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
