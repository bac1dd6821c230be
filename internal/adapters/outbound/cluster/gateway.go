package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/infra/metrics"
	"github.com/kubebridge/kubebridge/internal/logic/control"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// Repeated 401s are logged at error level at most once per window; the
// rest drop to debug.
const authErrorLogCooldown = 5 * time.Minute

// Gateway is the cluster access layer. Reads probe the API server first
// and degrade to empty results when it is unreachable; every call is tried
// on the raw HTTP transport before falling back to the structured client.
type Gateway struct {
	logger     *slog.Logger
	desc       ConnectionDescriptor
	clk        clock.Clock
	transports []transport

	mu              sync.Mutex
	lastAuthErrorAt time.Time
}

// New creates a gateway with the HTTP transport as primary and the
// structured client as fallback.
func New(
	desc ConnectionDescriptor,
	logger *slog.Logger,
	clk clock.Clock,
) (*Gateway, error) {
	fallback, err := newClientsetTransport(desc, clk)
	if err != nil {
		return nil, fmt.Errorf("cluster gateway: %w", err)
	}

	return newWithTransports(desc, logger, clk, newHTTPTransport(desc, clk), fallback), nil
}

func newWithTransports(
	desc ConnectionDescriptor,
	logger *slog.Logger,
	clk clock.Clock,
	transports ...transport,
) *Gateway {
	return &Gateway{
		logger:     logger,
		desc:       desc,
		clk:        clk,
		transports: transports,
	}
}

var (
	_ snapshot.Repository = (*Gateway)(nil)
	_ control.Repository  = (*Gateway)(nil)
)

// Name returns the name of the server component.
func (g *Gateway) Name() string {
	return "cluster-gateway"
}

// Ping reports whether any transport can reach the API server.
func (g *Gateway) Ping(ctx context.Context) error {
	for _, t := range g.transports {
		if t.Probe(ctx) {
			return nil
		}
	}

	return fmt.Errorf("cluster %s unreachable", g.desc.ClusterName)
}

// listWith runs a read against the transports in order. Transports whose
// probe fails are skipped; if no transport is reachable the read degrades
// to an empty result. An error surfaces only when a reachable transport
// rejected the actual call and no other transport could serve it.
func listWith[T any](
	ctx context.Context,
	g *Gateway,
	op string,
	call func(transport) ([]T, error),
) ([]T, error) {
	var lastErr error

	reachable := false

	for _, t := range g.transports {
		if !t.Probe(ctx) {
			g.logger.DebugContext(ctx, "transport probe failed",
				"transport", t.Name(),
				"operation", op,
				"cluster", g.desc.ClusterName,
			)

			continue
		}

		// A fallback is only a fallback after a call error; a skipped
		// probe is the degrade path and does not count.
		if lastErr != nil {
			metrics.RecordTransportFallback(op)
		}

		reachable = true

		out, err := call(t)
		if err == nil {
			return out, nil
		}

		g.logError(ctx, op, t.Name(), err)

		lastErr = err
	}

	if !reachable || lastErr == nil {
		return nil, nil
	}

	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func (g *Gateway) ListDeploymentsQuery(ctx context.Context) ([]snapshot.Workload, error) {
	return listWith(ctx, g, "list_deployments", func(t transport) ([]snapshot.Workload, error) {
		return t.ListDeployments(ctx)
	})
}

func (g *Gateway) ListStatefulSetsQuery(ctx context.Context) ([]snapshot.Workload, error) {
	return listWith(ctx, g, "list_statefulsets", func(t transport) ([]snapshot.Workload, error) {
		return t.ListStatefulSets(ctx)
	})
}

func (g *Gateway) ListCronJobsQuery(ctx context.Context) ([]snapshot.CronJob, error) {
	return listWith(ctx, g, "list_cronjobs", func(t transport) ([]snapshot.CronJob, error) {
		return t.ListCronJobs(ctx)
	})
}

func (g *Gateway) ListNodesQuery(ctx context.Context) ([]snapshot.Node, error) {
	return listWith(ctx, g, "list_nodes", func(t transport) ([]snapshot.Node, error) {
		return t.ListNodes(ctx)
	})
}

func (g *Gateway) ListPodsQuery(ctx context.Context) ([]snapshot.Pod, error) {
	return listWith(ctx, g, "list_pods", func(t transport) ([]snapshot.Pod, error) {
		return t.ListPods(ctx)
	})
}

// countOf collapses a listing result into a count, degrading to zero on
// any failure so counts and lists always degrade together.
func countOf[T any](out []T, err error) int {
	if err != nil {
		return 0
	}

	return len(out)
}

func (g *Gateway) CountDeploymentsQuery(ctx context.Context) int {
	return countOf(g.ListDeploymentsQuery(ctx))
}

func (g *Gateway) CountStatefulSetsQuery(ctx context.Context) int {
	return countOf(g.ListStatefulSetsQuery(ctx))
}

func (g *Gateway) CountCronJobsQuery(ctx context.Context) int {
	return countOf(g.ListCronJobsQuery(ctx))
}

func (g *Gateway) CountNodesQuery(ctx context.Context) int {
	return countOf(g.ListNodesQuery(ctx))
}

func (g *Gateway) CountPodsQuery(ctx context.Context) int {
	return countOf(g.ListPodsQuery(ctx))
}

func (g *Gateway) ScaleWorkloadCommand(
	ctx context.Context,
	kind snapshot.Kind,
	namespace,
	name string,
	replicas int32,
) bool {
	const op = "scale_workload"

	for i, t := range g.transports {
		err := t.ScaleWorkload(ctx, kind, namespace, name, replicas)
		if err == nil {
			g.logger.InfoContext(ctx, "scaled workload",
				"kind", kind,
				"namespace", namespace,
				"name", name,
				"replicas", replicas,
				"transport", t.Name(),
			)

			return true
		}

		g.logError(ctx, op, t.Name(), err)

		if i < len(g.transports)-1 {
			metrics.RecordTransportFallback(op)
		}
	}

	return false
}

func (g *Gateway) SuspendCronJobCommand(
	ctx context.Context,
	namespace,
	name string,
) control.CronJobResult {
	return g.setCronJobSuspend(ctx, namespace, name, true)
}

func (g *Gateway) ResumeCronJobCommand(
	ctx context.Context,
	namespace,
	name string,
) control.CronJobResult {
	return g.setCronJobSuspend(ctx, namespace, name, false)
}

func (g *Gateway) setCronJobSuspend(
	ctx context.Context,
	namespace,
	name string,
	suspend bool,
) control.CronJobResult {
	const op = "set_cronjob_suspend"

	result := control.CronJobResult{
		CronJobName: name,
		Namespace:   namespace,
	}

	if err := g.checkNamespacePolicy(namespace); err != nil {
		result.Err = err

		return result
	}

	for i, t := range g.transports {
		err := t.SetCronJobSuspend(ctx, namespace, name, suspend)
		if err == nil {
			g.logger.InfoContext(ctx, "set cronjob suspend",
				"namespace", namespace,
				"name", name,
				"suspend", suspend,
				"transport", t.Name(),
			)

			result.Success = true
			result.Err = nil

			return result
		}

		g.logError(ctx, op, t.Name(), err)

		result.Err = err

		if i < len(g.transports)-1 {
			metrics.RecordTransportFallback(op)
		}
	}

	return result
}

func (g *Gateway) TriggerCronJobCommand(
	ctx context.Context,
	namespace,
	name string,
) control.TriggerResult {
	const op = "trigger_cronjob"

	result := control.TriggerResult{
		CronJobName: name,
		Namespace:   namespace,
	}

	if err := g.checkNamespacePolicy(namespace); err != nil {
		result.Err = err

		return result
	}

	jobName := fmt.Sprintf("%s-manual-%d", name, g.clk.Now().Unix())

	for i, t := range g.transports {
		uid, err := t.TriggerCronJob(ctx, namespace, name, jobName)
		if err == nil {
			g.logger.InfoContext(ctx, "triggered cronjob",
				"namespace", namespace,
				"name", name,
				"job", jobName,
				"transport", t.Name(),
			)

			result.Success = true
			result.Err = nil
			result.JobName = jobName
			result.JobUID = uid

			return result
		}

		g.logError(ctx, op, t.Name(), err)

		result.Err = err

		if i < len(g.transports)-1 {
			metrics.RecordTransportFallback(op)
		}
	}

	return result
}

// checkNamespacePolicy rejects cronjob mutations outside the configured
// namespace before any network traffic happens.
func (g *Gateway) checkNamespacePolicy(namespace string) error {
	if g.desc.AllNamespaces || namespace == g.desc.Namespace {
		return nil
	}

	return fmt.Errorf(
		"%w: cronjob is in namespace %s, configured namespace is %s",
		control.ErrNamespaceForbidden, namespace, g.desc.Namespace,
	)
}

func (g *Gateway) logError(ctx context.Context, op, transportName string, err error) {
	category := classify(err)

	metrics.RecordAPIError(category)

	attrs := []any{
		"operation", op,
		"transport", transportName,
		"cluster", g.desc.ClusterName,
		"category", category,
		"reason", err,
	}

	if category == categoryAuthentication {
		g.mu.Lock()
		suppress := !g.lastAuthErrorAt.IsZero() && g.clk.Since(g.lastAuthErrorAt) < authErrorLogCooldown

		if !suppress {
			g.lastAuthErrorAt = g.clk.Now()
		}
		g.mu.Unlock()

		if suppress {
			g.logger.DebugContext(ctx, "cluster api authentication failed", attrs...)
		} else {
			g.logger.ErrorContext(ctx, "cluster api authentication failed", attrs...)
		}

		return
	}

	g.logger.ErrorContext(ctx, "cluster api call failed", attrs...)
}
