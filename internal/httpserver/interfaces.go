package httpserver

import (
	"context"
	"time"

	"github.com/kubebridge/kubebridge/internal/logic/control"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// snapshotter is the internal interface to the snapshot coordinator.
type snapshotter interface {
	Snapshot() *snapshot.Snapshot
	LastRefreshTime() time.Time
	RefreshCommand(ctx context.Context) (*snapshot.Snapshot, error)
}

// controller is the internal interface to the control state machines.
type controller interface {
	ScaleCommand(
		ctx context.Context,
		kind snapshot.Kind,
		namespace,
		name string,
		replicas int32,
	) error
	StartWorkloadCommand(ctx context.Context, kind snapshot.Kind, namespace, name string) error
	StopWorkloadCommand(ctx context.Context, kind snapshot.Kind, namespace, name string) error
	SuspendCronJobCommand(ctx context.Context, namespace, name string) error
	ResumeCronJobCommand(ctx context.Context, namespace, name string) error
	TriggerCronJobCommand(ctx context.Context, namespace, name string) (control.TriggerResult, error)
	State(kind snapshot.Kind, namespace, name string) (control.State, bool)
	States() []control.State
}

// resourceCounter is the internal interface for live resource counting.
// Counts degrade to zero together with their listings.
type resourceCounter interface {
	CountDeploymentsQuery(ctx context.Context) int
	CountStatefulSetsQuery(ctx context.Context) int
	CountCronJobsQuery(ctx context.Context) int
	CountNodesQuery(ctx context.Context) int
	CountPodsQuery(ctx context.Context) int
}

// Pinger is one component whose health feeds the readiness endpoint.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}
