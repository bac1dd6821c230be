package cluster

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/infra/metrics"
	"github.com/kubebridge/kubebridge/internal/logic/control"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

type fakeTransport struct {
	name     string
	probeOK  bool
	listErr  error
	scaleErr error

	deployments  []snapshot.Workload
	statefulSets []snapshot.Workload
	cronJobs     []snapshot.CronJob
	nodes        []snapshot.Node
	pods         []snapshot.Pod

	listCalls  atomic.Int64
	scaleCalls atomic.Int64
	mutations  atomic.Int64
	triggerUID string
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Probe(_ context.Context) bool { return f.probeOK }

func (f *fakeTransport) ListDeployments(_ context.Context) ([]snapshot.Workload, error) {
	f.listCalls.Add(1)

	return f.deployments, f.listErr
}

func (f *fakeTransport) ListStatefulSets(_ context.Context) ([]snapshot.Workload, error) {
	f.listCalls.Add(1)

	return f.statefulSets, f.listErr
}

func (f *fakeTransport) ListCronJobs(_ context.Context) ([]snapshot.CronJob, error) {
	f.listCalls.Add(1)

	return f.cronJobs, f.listErr
}

func (f *fakeTransport) ListNodes(_ context.Context) ([]snapshot.Node, error) {
	f.listCalls.Add(1)

	return f.nodes, f.listErr
}

func (f *fakeTransport) ListPods(_ context.Context) ([]snapshot.Pod, error) {
	f.listCalls.Add(1)

	return f.pods, f.listErr
}

func (f *fakeTransport) ScaleWorkload(
	_ context.Context,
	_ snapshot.Kind,
	_, _ string,
	_ int32,
) error {
	f.scaleCalls.Add(1)

	return f.scaleErr
}

func (f *fakeTransport) SetCronJobSuspend(_ context.Context, _, _ string, _ bool) error {
	f.mutations.Add(1)

	return f.scaleErr
}

func (f *fakeTransport) TriggerCronJob(_ context.Context, _, _, _ string) (string, error) {
	f.mutations.Add(1)

	if f.scaleErr != nil {
		return "", f.scaleErr
	}

	return f.triggerUID, nil
}

// recordingHandler captures slog records for log-level assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r)

	return nil
}

func (h *recordingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(_ string) slog.Handler { return h }

func (h *recordingHandler) levels() []slog.Level {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]slog.Level, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, r.Level)
	}

	return out
}

func testDescriptor() ConnectionDescriptor {
	return ConnectionDescriptor{
		Host:        "10.0.0.10",
		Port:        6443,
		APIToken:    "token",
		ClusterName: "test",
		Namespace:   "default",
	}
}

func newTestGateway(transports ...transport) (*Gateway, *clock.Fake, *recordingHandler) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	handler := &recordingHandler{}
	logger := slog.New(handler)

	return newWithTransports(testDescriptor(), logger, clk, transports...), clk, handler
}

func TestListDeploymentsQuery_FallbackOnCallFailure(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, listErr: &apiError{status: 500}}
	fallback := &fakeTransport{
		name:    "clientset",
		probeOK: true,
		deployments: []snapshot.Workload{
			{Kind: snapshot.KindDeployment, Name: "web", Replicas: 2},
		},
	}

	g, _, _ := newTestGateway(primary, fallback)

	got, err := g.ListDeploymentsQuery(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web", got[0].Name)

	assert.Equal(t, int64(1), primary.listCalls.Load())
	assert.Equal(t, int64(1), fallback.listCalls.Load())
}

func TestListDeploymentsQuery_BothTransportsFail(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, listErr: &apiError{status: 500}}
	fallback := &fakeTransport{name: "clientset", probeOK: true, listErr: &apiError{status: 500}}

	g, _, _ := newTestGateway(primary, fallback)

	_, err := g.ListDeploymentsQuery(context.Background())
	require.Error(t, err)
}

func TestListDeploymentsQuery_UnreachableClusterDegrades(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: false}
	fallback := &fakeTransport{name: "clientset", probeOK: false}

	g, _, _ := newTestGateway(primary, fallback)

	got, err := g.ListDeploymentsQuery(context.Background())
	require.NoError(t, err, "unreachable cluster must degrade, not fail")
	assert.Empty(t, got)

	assert.Zero(t, primary.listCalls.Load(), "no call may happen after a failed probe")
	assert.Zero(t, fallback.listCalls.Load())
}

type countQueryCase struct {
	name  string
	count func(*Gateway, context.Context) int
	want  int
}

func TestCountQueries_MatchListingsAndDegradeTogether(t *testing.T) {
	t.Parallel()

	healthy := &fakeTransport{
		name:    "http",
		probeOK: true,
		deployments: []snapshot.Workload{
			{Kind: snapshot.KindDeployment, Name: "web"},
			{Kind: snapshot.KindDeployment, Name: "api"},
		},
		statefulSets: []snapshot.Workload{
			{Kind: snapshot.KindStatefulSet, Name: "db"},
		},
		cronJobs: []snapshot.CronJob{{Name: "backup"}},
		nodes:    []snapshot.Node{{Name: "node-a"}, {Name: "node-b"}, {Name: "node-c"}},
		pods:     []snapshot.Pod{{Name: "web-1"}, {Name: "web-2"}},
	}
	broken := &fakeTransport{name: "http", probeOK: true, listErr: &apiError{status: 500}}

	tests := []countQueryCase{
		{"deployments", (*Gateway).CountDeploymentsQuery, 2},
		{"statefulsets", (*Gateway).CountStatefulSetsQuery, 1},
		{"cronjobs", (*Gateway).CountCronJobsQuery, 1},
		{"nodes", (*Gateway).CountNodesQuery, 3},
		{"pods", (*Gateway).CountPodsQuery, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, _, _ := newTestGateway(healthy)
			assert.Equal(t, tt.want, tt.count(g, context.Background()))

			g, _, _ = newTestGateway(broken)
			assert.Zero(t, tt.count(g, context.Background()), "count must degrade to zero with the listing")
		})
	}
}

func TestAuthErrorLogging_Deduplicated(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, listErr: &apiError{status: 401}}

	g, clk, handler := newTestGateway(primary)

	_, err := g.ListDeploymentsQuery(context.Background())
	require.Error(t, err)

	_, err = g.ListDeploymentsQuery(context.Background())
	require.Error(t, err)

	levels := handler.levels()
	require.Len(t, levels, 2)
	assert.Equal(t, slog.LevelError, levels[0])
	assert.Equal(t, slog.LevelDebug, levels[1], "repeated auth failure inside the window drops to debug")

	clk.Advance(6 * time.Minute)

	_, err = g.ListDeploymentsQuery(context.Background())
	require.Error(t, err)

	levels = handler.levels()
	require.Len(t, levels, 3)
	assert.Equal(t, slog.LevelError, levels[2], "auth failure after the window is an error again")
}

func TestNonAuthErrorLogging_AlwaysErrorLevel(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, listErr: &apiError{status: 403}}

	g, _, handler := newTestGateway(primary)

	_, err := g.ListDeploymentsQuery(context.Background())
	require.Error(t, err)

	_, err = g.ListDeploymentsQuery(context.Background())
	require.Error(t, err)

	levels := handler.levels()
	require.Len(t, levels, 2)
	assert.Equal(t, slog.LevelError, levels[0])
	assert.Equal(t, slog.LevelError, levels[1], "only auth failures are deduplicated")
}

func TestListNodesQuery_FallbackMetricOnlyAfterCallFailure(t *testing.T) {
	fallbacks := func() float64 {
		return testutil.ToFloat64(metrics.TransportFallbackTotal.WithLabelValues("list_nodes"))
	}
	before := fallbacks()

	// Probe failure on the primary is the degrade path, not a fallback.
	primary := &fakeTransport{name: "http", probeOK: false}
	fallback := &fakeTransport{name: "clientset", probeOK: true, nodes: []snapshot.Node{{Name: "node-a"}}}

	g, _, _ := newTestGateway(primary, fallback)

	got, err := g.ListNodesQuery(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, before, fallbacks(), "a skipped probe must not count as a fallback")

	primary = &fakeTransport{name: "http", probeOK: true, listErr: &apiError{status: 500}}
	fallback = &fakeTransport{name: "clientset", probeOK: true, nodes: []snapshot.Node{{Name: "node-a"}}}

	g, _, _ = newTestGateway(primary, fallback)

	got, err = g.ListNodesQuery(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, before+1, fallbacks(), "a primary call error served by the fallback counts once")
}

func TestScaleWorkloadCommand_SuccessOnFallback(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, scaleErr: &apiError{status: 500}}
	fallback := &fakeTransport{name: "clientset", probeOK: true}

	g, _, _ := newTestGateway(primary, fallback)

	ok := g.ScaleWorkloadCommand(context.Background(), snapshot.KindDeployment, "default", "web", 3)
	assert.True(t, ok)
	assert.Equal(t, int64(1), primary.scaleCalls.Load())
	assert.Equal(t, int64(1), fallback.scaleCalls.Load())
}

func TestScaleWorkloadCommand_AllTransportsFail(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, scaleErr: &apiError{status: 500}}
	fallback := &fakeTransport{name: "clientset", probeOK: true, scaleErr: &apiError{status: 500}}

	g, _, _ := newTestGateway(primary, fallback)

	ok := g.ScaleWorkloadCommand(context.Background(), snapshot.KindDeployment, "default", "web", 3)
	assert.False(t, ok)
}

func TestSuspendCronJobCommand_NamespacePolicy(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true}

	g, _, _ := newTestGateway(primary)

	res := g.SuspendCronJobCommand(context.Background(), "kube-system", "backup")
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, control.ErrNamespaceForbidden)
	assert.Zero(t, primary.mutations.Load(), "policy rejection must not reach the network")
}

func TestTriggerCronJobCommand_NamePattern(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true, triggerUID: "uid-123"}

	g, clk, _ := newTestGateway(primary)

	res := g.TriggerCronJobCommand(context.Background(), "default", "backup")
	require.True(t, res.Success)
	assert.Equal(t, "uid-123", res.JobUID)

	wantName := "backup-manual-" + strconv.FormatInt(clk.Now().Unix(), 10)
	assert.Equal(t, wantName, res.JobName)
}

func TestTriggerCronJobCommand_NamespacePolicy(t *testing.T) {
	t.Parallel()

	primary := &fakeTransport{name: "http", probeOK: true}

	g, _, _ := newTestGateway(primary)

	res := g.TriggerCronJobCommand(context.Background(), "other", "backup")
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, control.ErrNamespaceForbidden)
	assert.Zero(t, primary.mutations.Load())
}

func TestPing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		probes  []bool
		wantErr bool
	}{
		{name: "primary reachable", probes: []bool{true, false}, wantErr: false},
		{name: "only fallback reachable", probes: []bool{false, true}, wantErr: false},
		{name: "unreachable", probes: []bool{false, false}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transports := make([]transport, 0, len(tt.probes))
			for _, ok := range tt.probes {
				transports = append(transports, &fakeTransport{name: "t", probeOK: ok})
			}

			g, _, _ := newTestGateway(transports...)

			err := g.Ping(context.Background())
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
		})
	}
}
