package snapshot

import "context"

// Repository is the port interface for cluster read operations.
// Implementations are provided by adapters in the outbound layer.
type Repository interface {
	ListDeploymentsQuery(ctx context.Context) ([]Workload, error)
	ListStatefulSetsQuery(ctx context.Context) ([]Workload, error)
	ListCronJobsQuery(ctx context.Context) ([]CronJob, error)
	ListNodesQuery(ctx context.Context) ([]Node, error)
	ListPodsQuery(ctx context.Context) ([]Pod, error)
}
