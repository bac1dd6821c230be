package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/infra/metrics"
)

// Service periodically polls the cluster and publishes immutable snapshots.
// A refresh succeeds or fails as a unit: on any fetch error the previous
// snapshot stays published and consumers keep reading stale data.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	clk      clock.Clock
	interval time.Duration

	current atomic.Pointer[Snapshot]

	mu               sync.RWMutex
	lastRefreshEnd   time.Time
	refreshListeners []func(*Snapshot)
	errorListeners   []func(error)

	refreshCh  chan struct{}
	ready      chan struct{}
	doneCh     chan struct{}
	inShutdown atomic.Bool
}

// New creates a new snapshot coordinator service.
func New(
	logger *slog.Logger,
	repo Repository,
	clk clock.Clock,
	interval time.Duration,
) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		clk:       clk,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
		ready:     make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Name returns the name of the server component.
func (s *Service) Name() string {
	return "snapshot-coordinator"
}

func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "snapshot coordinator is shutting down, skipping start")

		return nil
	}

	go s.RunCommand(ctx)

	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		age := s.lastRefreshAge()
		if age > 2*s.interval {
			return fmt.Errorf("last refresh was too long ago: %s", age.Round(time.Second).String())
		}

		return nil
	default:
		return fmt.Errorf("snapshot coordinator is not ready")
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "snapshot coordinator is already shutting down, skipping shutdown")

		return nil // Already shutting down
	}

	defer func() {
		s.logger.InfoContext(ctx, "snapshot coordinator shut downed")
	}()

	s.logger.InfoContext(ctx, "shutting down snapshot coordinator")

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before refresh loop exited: %w", ctx.Err())
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "refresh loop exited")
	}

	return nil
}

// OnRefresh registers a listener called with every successfully published
// snapshot. Must be called before Start.
func (s *Service) OnRefresh(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshListeners = append(s.refreshListeners, fn)
}

// OnRefreshError registers a listener called on every failed refresh.
// Must be called before Start.
func (s *Service) OnRefreshError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorListeners = append(s.errorListeners, fn)
}

// RequestRefresh schedules an out-of-band refresh on the run loop. It never
// blocks; when a refresh is already pending the request coalesces into it.
func (s *Service) RequestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// RunCommand runs the refresh loop with the configured interval.
func (s *Service) RunCommand(ctx context.Context) {
	defer close(s.doneCh)

	logger := s.logger.With("coordinator", "RunCommand")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	readyOnce := sync.OnceFunc(func() { close(s.ready) })

	for {
		_, err := s.RefreshCommand(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "refresh error", "reason", err)
		}

		// Readiness means at least one refresh attempt has finished.
		readyOnce()

		select {
		case <-ticker.C:
		case <-s.refreshCh:
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating refresh loop")

			return
		}
	}
}

// RefreshCommand fetches all resource kinds and atomically publishes a new
// snapshot. On any fetch error no snapshot is published and the wrapped
// error is reported to error listeners.
func (s *Service) RefreshCommand(ctx context.Context) (*Snapshot, error) {
	snap, err := s.fetch(ctx)

	s.setLastRefreshEnd()

	if err != nil {
		metrics.RecordRefresh(false)

		wrapped := fmt.Errorf("%w: %w", ErrUpdateFailed, err)

		for _, fn := range s.errorListenersCopy() {
			fn(wrapped)
		}

		return nil, wrapped
	}

	s.current.Store(snap)

	metrics.RecordRefresh(true)

	for _, fn := range s.refreshListenersCopy() {
		fn(snap)
	}

	s.logger.DebugContext(ctx, "snapshot refreshed",
		"deployments", len(snap.Deployments),
		"statefulsets", len(snap.StatefulSets),
		"cronjobs", len(snap.CronJobs),
		"nodes", len(snap.Nodes),
		"pods", snap.PodsCount,
	)

	return snap, nil
}

func (s *Service) fetch(ctx context.Context) (*Snapshot, error) {
	deployments, err := s.repo.ListDeploymentsQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	statefulSets, err := s.repo.ListStatefulSetsQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statefulsets: %w", err)
	}

	cronJobs, err := s.repo.ListCronJobsQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cronjobs: %w", err)
	}

	nodes, err := s.repo.ListNodesQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	pods, err := s.repo.ListPodsQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	snap := &Snapshot{
		Deployments:  make(map[string]Workload, len(deployments)),
		StatefulSets: make(map[string]Workload, len(statefulSets)),
		CronJobs:     make(map[string]CronJob, len(cronJobs)),
		Nodes:        make(map[string]Node, len(nodes)),
		Pods:         pods,
		PodsCount:    len(pods),
		RefreshedAt:  s.clk.Now(),
	}

	for i := range deployments {
		snap.Deployments[deployments[i].Name] = deployments[i]
	}

	for i := range statefulSets {
		snap.StatefulSets[statefulSets[i].Name] = statefulSets[i]
	}

	for i := range cronJobs {
		snap.CronJobs[cronJobs[i].Name] = cronJobs[i]
	}

	for i := range nodes {
		snap.Nodes[nodes[i].Name] = nodes[i]
	}

	return snap, nil
}

// Snapshot returns the most recently published snapshot, or nil before the
// first successful refresh.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Workload looks up a deployment or statefulset by name in the current
// snapshot.
func (s *Service) Workload(kind Kind, name string) (Workload, bool) {
	snap := s.current.Load()
	if snap == nil {
		return Workload{}, false
	}

	switch kind {
	case KindDeployment:
		w, ok := snap.Deployments[name]

		return w, ok
	case KindStatefulSet:
		w, ok := snap.StatefulSets[name]

		return w, ok
	default:
		return Workload{}, false
	}
}

// CronJob looks up a cronjob by name in the current snapshot.
func (s *Service) CronJob(name string) (CronJob, bool) {
	snap := s.current.Load()
	if snap == nil {
		return CronJob{}, false
	}

	cj, ok := snap.CronJobs[name]

	return cj, ok
}

// Node looks up a node by name in the current snapshot.
func (s *Service) Node(name string) (Node, bool) {
	snap := s.current.Load()
	if snap == nil {
		return Node{}, false
	}

	n, ok := snap.Nodes[name]

	return n, ok
}

// PodsCount returns the pod count of the current snapshot.
func (s *Service) PodsCount() int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}

	return snap.PodsCount
}

// LastRefreshTime returns the publication time of the current snapshot.
func (s *Service) LastRefreshTime() time.Time {
	snap := s.current.Load()
	if snap == nil {
		return time.Time{}
	}

	return snap.RefreshedAt
}

func (s *Service) refreshListenersCopy() []func(*Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]func(*Snapshot), len(s.refreshListeners))
	copy(out, s.refreshListeners)

	return out
}

func (s *Service) errorListenersCopy() []func(error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]func(error), len(s.errorListeners))
	copy(out, s.errorListeners)

	return out
}

func (s *Service) setLastRefreshEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRefreshEnd = s.clk.Now()
}

func (s *Service) lastRefreshAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.clk.Since(s.lastRefreshEnd)
}
