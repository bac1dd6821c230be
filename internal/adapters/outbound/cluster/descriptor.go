package cluster

import (
	"context"
	"fmt"

	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// ConnectionDescriptor carries everything needed to reach one cluster
// API server.
type ConnectionDescriptor struct {
	Host     string
	Port     int
	APIToken string

	// CACert is an optional PEM bundle used to verify the API server
	// certificate. Ignored when VerifyTLS is false.
	CACert    []byte
	VerifyTLS bool

	// ClusterName is a display name used in logs only.
	ClusterName string

	// Namespace scopes reads and mutations when AllNamespaces is false.
	Namespace     string
	AllNamespaces bool
}

// BaseURL returns the https root of the API server.
func (d ConnectionDescriptor) BaseURL() string {
	return fmt.Sprintf("https://%s:%d", d.Host, d.Port)
}

// transport is one way of talking to the cluster API server. The gateway
// tries transports in order and falls back on call failures.
type transport interface {
	Name() string

	// Probe reports whether the API server answers at all. A false
	// return makes the gateway degrade reads instead of failing them.
	Probe(ctx context.Context) bool

	ListDeployments(ctx context.Context) ([]snapshot.Workload, error)
	ListStatefulSets(ctx context.Context) ([]snapshot.Workload, error)
	ListCronJobs(ctx context.Context) ([]snapshot.CronJob, error)
	ListNodes(ctx context.Context) ([]snapshot.Node, error)
	ListPods(ctx context.Context) ([]snapshot.Pod, error)

	ScaleWorkload(
		ctx context.Context,
		kind snapshot.Kind,
		namespace,
		name string,
		replicas int32,
	) error

	SetCronJobSuspend(
		ctx context.Context,
		namespace,
		name string,
		suspend bool,
	) error

	// TriggerCronJob creates a one-off job named jobName from the
	// cronjob's template and returns the created job's UID.
	TriggerCronJob(
		ctx context.Context,
		namespace,
		name,
		jobName string,
	) (string, error)
}
