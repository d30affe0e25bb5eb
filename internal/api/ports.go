package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tabone/drone/internal/command"
	"github.com/tabone/drone/internal/control"
	"github.com/tabone/drone/internal/navdata"
	"github.com/tabone/drone/internal/telemetry"
)

// StatePort exposes the latest navdata.
type StatePort interface {
	Snapshot() navdata.Snapshot
}

// SchedulerPort exposes the outbound command counters.
type SchedulerPort interface {
	Seq() uint32
	Len() int
	Err() error
}

// TelemetryPort streams telemetry events.
type TelemetryPort interface {
	ServeSSE(w http.ResponseWriter, r *http.Request)
}

// FlightPort issues flight commands.
type FlightPort interface {
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	Mayday(ctx context.Context) error
	TrimOnce(ctx context.Context) error
	Hover()
	MoveForward(d time.Duration)
	MoveBack(d time.Duration)
	MoveLeft(d time.Duration)
	MoveRight(d time.Duration)
	MoveUp(d time.Duration)
	MoveDown(d time.Duration)
	SpinLeft(d time.Duration)
	SpinRight(d time.Duration)
}

var (
	_ StatePort     = (*navdata.State)(nil)
	_ SchedulerPort = (*command.Scheduler)(nil)
	_ TelemetryPort = (*telemetry.Hub)(nil)
	_ FlightPort    = (*control.Client)(nil)
)
