// Command dronesim runs the UDP vehicle emulator so the engine can be
// exercised without hardware. Point the engine's vehicle address at it:
//
//	dronesim -command 127.0.0.1:5556 -navdata 127.0.0.1:5554
//	DRONE_VEHICLE_ADDRESS=127.0.0.1 DRONE_LOCAL_COMMAND_ADDR=:0 drone
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tabone/drone/internal/dronesim"
	"github.com/tabone/drone/internal/logging"
)

func main() {
	var (
		cmdAddr  = flag.String("command", "127.0.0.1:5556", "AT command listen address")
		navAddr  = flag.String("navdata", "127.0.0.1:5554", "NAVDATA listen address")
		interval = flag.Duration("interval", 30*time.Millisecond, "NAVDATA packet interval")
		delay    = flag.Duration("delay", 500*time.Millisecond, "delay between a REF command and the flight state change")
		battery  = flag.Uint("battery", 100, "initial battery percentage")
		level    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log, closer, err := logging.New(logging.Options{Level: *level, Format: "text"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dronesim: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := dronesim.New(dronesim.Options{
		CommandAddr:     *cmdAddr,
		NavdataAddr:     *navAddr,
		Interval:        *interval,
		TransitionDelay: *delay,
		Battery:         uint32(*battery),
		Logger:          log,
	})
	if err := sim.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start simulator")
		closer.Close()
		os.Exit(1)
	}

	log.WithFields(logrus.Fields{
		"command": sim.CommandAddr().String(),
		"navdata": sim.NavdataAddr().String(),
	}).Info("simulator listening")

	<-ctx.Done()
	if err := sim.Close(); err != nil {
		log.WithError(err).Warn("simulator close")
	}
	log.WithField("commands", len(sim.Commands())).Info("simulator stopped")
}
