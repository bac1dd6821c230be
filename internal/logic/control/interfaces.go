package control

import (
	"context"

	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// Repository is the port interface for cluster mutations.
// Implementations are provided by adapters in the outbound layer.
type Repository interface {
	// ScaleWorkloadCommand sets the desired replica count and reports
	// whether the cluster accepted the request.
	ScaleWorkloadCommand(
		ctx context.Context,
		kind snapshot.Kind,
		namespace,
		name string,
		replicas int32,
	) bool

	SuspendCronJobCommand(
		ctx context.Context,
		namespace,
		name string,
	) CronJobResult

	ResumeCronJobCommand(
		ctx context.Context,
		namespace,
		name string,
	) CronJobResult

	TriggerCronJobCommand(
		ctx context.Context,
		namespace,
		name string,
	) TriggerResult
}

// SnapshotReader is the port to the snapshot coordinator, used for
// verification refreshes and post-failure reconciliation.
type SnapshotReader interface {
	RefreshCommand(ctx context.Context) (*snapshot.Snapshot, error)
	RequestRefresh()
}
