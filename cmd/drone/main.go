// Command drone runs the vehicle protocol engine: the AT command scheduler,
// the NAVDATA receiver and handshake, the flight client and, when enabled,
// the operator API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tabone/drone/internal/api"
	"github.com/tabone/drone/internal/audit"
	"github.com/tabone/drone/internal/auth"
	"github.com/tabone/drone/internal/command"
	"github.com/tabone/drone/internal/config"
	"github.com/tabone/drone/internal/control"
	"github.com/tabone/drone/internal/logging"
	"github.com/tabone/drone/internal/navdata"
	"github.com/tabone/drone/internal/telemetry"
)

// Version is the engine release.
const Version = "1.0.0"

const (
	// streamCheck is how often the NAVDATA stream is checked for stalls.
	streamCheck = time.Second
	// streamStale is the silence after which the start request is resent.
	streamStale = 2 * time.Second

	shutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file (default $"+config.EnvConfigFile+")")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "drone: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Step 1: configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Step 2: logging
	log, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log.WithFields(logrus.Fields{
		"version": Version,
		"vehicle": cfg.Vehicle.Address,
	}).Info("starting drone engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 3: audit trail
	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditLogger, err = audit.NewLogger(audit.Options{
			Dir:        cfg.Audit.Dir,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		defer auditLogger.Close()
		log.WithField("path", auditLogger.GetFilePath()).Info("audit trail enabled")
	}

	// Step 4: navdata state and telemetry hub
	state := navdata.NewState()
	hub := telemetry.NewHub(telemetry.Options{
		BufferSize:        cfg.Telemetry.BufferSize,
		HeartbeatInterval: cfg.Telemetry.HeartbeatInterval.Duration,
		Snapshot:          func() map[string]interface{} { return telemetry.SnapshotData(state.Snapshot()) },
		Logger:            log,
	})
	defer hub.Stop()
	defer hub.Watch(state, cfg.Telemetry.NavdataInterval.Duration)()
	if auditLogger != nil {
		defer state.OnModeChange(auditLogger.LogModeChange)()
	}

	// Step 5: command channel
	cmdVehicle, err := net.ResolveUDPAddr("udp", cfg.Vehicle.CommandAddr())
	if err != nil {
		return fmt.Errorf("resolve vehicle command address: %w", err)
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", cfg.Local.CommandAddr)
	if err != nil {
		err = &command.ChannelError{Op: "bind", Err: err}
		if auditLogger != nil {
			auditLogger.LogChannelFailure("command", err)
		}
		return err
	}
	defer conn.Close()

	sinks := command.AuditLoggers{hub}
	if auditLogger != nil {
		sinks = append(sinks, auditLogger)
	}
	sched := command.NewScheduler(conn, cmdVehicle,
		command.WithInterval(cfg.Timing.CommandInterval.Duration),
		command.WithPayloadLimit(cfg.Timing.PayloadLimit),
		command.WithLogger(log),
		command.WithAuditLogger(sinks),
	)

	// Step 6: flight client, registered before the first navdata packet so
	// the handshake reactor sees the BOOTSTRAP transition.
	client := control.NewClient(sched, state,
		control.WithMoveSpeed(float32(cfg.Control.MoveSpeed)),
		control.WithOneShot(cfg.Control.OneShot),
		control.WithLogger(log),
	)
	if err := client.Start(); err != nil {
		return fmt.Errorf("start flight client: %w", err)
	}
	defer client.Close()

	sched.Start()
	defer sched.Shutdown()

	// Step 7: navdata channel
	navVehicle, err := net.ResolveUDPAddr("udp", cfg.Vehicle.NavdataAddr())
	if err != nil {
		return fmt.Errorf("resolve vehicle navdata address: %w", err)
	}
	receiver := navdata.NewReceiver(state, navVehicle,
		navdata.WithListenAddr(cfg.Local.NavdataAddr),
		navdata.WithReadBufferSize(cfg.Timing.ReadBufferSize),
		navdata.WithReceiverLogger(log),
	)
	if err := receiver.Initialize(ctx); err != nil {
		if auditLogger != nil {
			auditLogger.LogChannelFailure("navdata", err)
		}
		return fmt.Errorf("navdata channel: %w", err)
	}
	defer receiver.Close()
	go watchStream(ctx, receiver, state, log)

	// Step 8: operator API
	if cfg.API.Enabled {
		mw, err := newAuthMiddleware(cfg.API.Auth)
		if err != nil {
			return err
		}
		if mw == nil {
			log.Warn("api authentication disabled")
		}
		server := api.NewServer(api.Ports{
			State:     state,
			Scheduler: sched,
			Telemetry: hub,
			Flight:    client,
		}, mw, api.Timeouts{
			Read:    cfg.API.ReadTimeout.Duration,
			Write:   cfg.API.WriteTimeout.Duration,
			Idle:    cfg.API.IdleTimeout.Duration,
			Command: cfg.API.CommandTimeout.Duration,
		}, log)
		if err := server.Start(cfg.API.Addr); err != nil {
			return err
		}
		defer func() {
			// Ending the hub first releases open event streams.
			hub.Stop()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(sctx); err != nil {
				log.WithError(err).Warn("api shutdown")
			}
		}()
	}

	log.Info("drone engine started")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return nil
	case <-sched.Done():
		err := sched.Err()
		if err == nil {
			err = command.ErrSchedulerStopped
		}
		return fmt.Errorf("command channel: %w", err)
	}
}

// watchStream resends the NAVDATA start request whenever the stream has
// been silent for streamStale.
func watchStream(ctx context.Context, receiver *navdata.Receiver, state *navdata.State, log logrus.FieldLogger) {
	ticker := time.NewTicker(streamCheck)
	defer ticker.Stop()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			last := state.Snapshot().UpdatedAt
			if last.IsZero() {
				last = started
			}
			if now.Sub(last) < streamStale {
				continue
			}
			err := receiver.Request()
			if errors.Is(err, navdata.ErrNotInitialized) {
				return
			}
			if err != nil {
				log.WithError(err).Warn("navdata start request failed")
				continue
			}
			log.WithField("silence", now.Sub(last).Round(time.Millisecond)).Warn("navdata stream stalled, start request resent")
		}
	}
}

func newAuthMiddleware(c config.AuthConfig) (*auth.Middleware, error) {
	if c.Algorithm == "" {
		return nil, nil
	}

	pem := c.PublicKeyPEM
	if pem == "" && c.PublicKeyFile != "" {
		data, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read api public key: %w", err)
		}
		pem = string(data)
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Algorithm:    c.Algorithm,
		SecretKey:    c.Secret,
		PublicKeyPEM: pem,
	})
	if err != nil {
		return nil, fmt.Errorf("api auth: %w", err)
	}
	return auth.NewMiddleware(verifier, api.WriteAuthError), nil
}
