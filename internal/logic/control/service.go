package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/infra/metrics"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// session is the tracked control state of one resource.
type session struct {
	state State

	// missCount counts consecutive snapshots the resource was absent
	// from. At two misses the session is removed.
	missCount int

	// lastRunningReplicas remembers the most recent nonzero replica
	// count so a stopped workload restarts at its previous size.
	lastRunningReplicas int32

	verifyCancel context.CancelFunc
	verifyGen    uint64
}

// Service owns the per-resource mutation state machines. Mutations apply
// optimistically: observers see the target state before the cluster call,
// and see a revert if the call is rejected.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	reader   SnapshotReader
	clk      clock.Clock
	settings Settings

	mu        sync.Mutex
	sessions  map[Target]*session
	observers []func(State)

	runCtx     context.Context
	runCancel  context.CancelFunc
	wg         sync.WaitGroup
	ready      chan struct{}
	inShutdown atomic.Bool
}

// New creates a new control service.
func New(
	logger *slog.Logger,
	repo Repository,
	reader SnapshotReader,
	clk clock.Clock,
	settings Settings,
) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		reader:   reader,
		clk:      clk,
		settings: settings.withDefaults(),
		sessions: make(map[Target]*session),
		ready:    make(chan struct{}),
	}
}

// Name returns the name of the server component.
func (s *Service) Name() string {
	return "control-state"
}

func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "control service is shutting down, skipping start")

		return nil
	}

	s.mu.Lock()
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	close(s.ready)

	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return nil
	default:
		return fmt.Errorf("control service is not ready")
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "control service is already shutting down, skipping shutdown")

		return nil // Already shutting down
	}

	defer func() {
		s.logger.InfoContext(ctx, "control service shut downed")
	}()

	s.logger.InfoContext(ctx, "shutting down control service")

	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before verification polls exited: %w", ctx.Err())
	case <-done:
		s.logger.InfoContext(ctx, "verification polls exited")
	}

	return nil
}

// Subscribe registers an observer notified on every state change.
// Must be called before Start.
func (s *Service) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, fn)
}

// State returns the control state of a tracked resource.
func (s *Service) State(kind snapshot.Kind, namespace, name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[Target{Kind: kind, Namespace: namespace, Name: name}]
	if !ok {
		return State{}, false
	}

	return sess.state, true
}

// States returns the control state of every tracked resource.
func (s *Service) States() []State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]State, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.state)
	}

	return out
}

// ScaleCommand sets the desired replica count of a deployment or
// statefulset through the optimistic state machine.
func (s *Service) ScaleCommand(
	ctx context.Context,
	kind snapshot.Kind,
	namespace,
	name string,
	replicas int32,
) error {
	if replicas < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidReplicas, replicas)
	}

	if kind != snapshot.KindDeployment && kind != snapshot.KindStatefulSet {
		return fmt.Errorf("%w: kind %s is not scalable", ErrUnknownTarget, kind)
	}

	target := Target{Kind: kind, Namespace: namespace, Name: name}

	prev, optimistic, err := s.beginMutation(target, func(st *State) {
		st.Replicas = replicas
		st.Running = replicas > 0
	})
	if err != nil {
		return err
	}

	s.notify(optimistic)

	ok := s.repo.ScaleWorkloadCommand(ctx, kind, namespace, name, replicas)
	if !ok {
		reverted := s.failMutation(target, prev)
		s.notify(reverted)
		s.reader.RequestRefresh()

		return fmt.Errorf("scale %s %s/%s: %w", kind, namespace, name, ErrMutationFailed)
	}

	verifying := s.acceptMutation(target, func(snap *snapshot.Snapshot) bool {
		w, found := lookupWorkload(snap, kind, name)

		return found && w.Replicas == replicas
	})
	s.notify(verifying)

	return nil
}

// StartWorkloadCommand scales a stopped workload back up, restoring its
// last known nonzero replica count, or 1 when none was observed.
func (s *Service) StartWorkloadCommand(
	ctx context.Context,
	kind snapshot.Kind,
	namespace,
	name string,
) error {
	target := Target{Kind: kind, Namespace: namespace, Name: name}

	s.mu.Lock()

	replicas := int32(1)

	if sess, ok := s.sessions[target]; ok && sess.lastRunningReplicas > 0 {
		replicas = sess.lastRunningReplicas
	}

	s.mu.Unlock()

	return s.ScaleCommand(ctx, kind, namespace, name, replicas)
}

// StopWorkloadCommand scales a workload to zero replicas.
func (s *Service) StopWorkloadCommand(
	ctx context.Context,
	kind snapshot.Kind,
	namespace,
	name string,
) error {
	return s.ScaleCommand(ctx, kind, namespace, name, 0)
}

// SuspendCronJobCommand suspends a cronjob through the optimistic state
// machine.
func (s *Service) SuspendCronJobCommand(ctx context.Context, namespace, name string) error {
	return s.setCronJobSuspend(ctx, namespace, name, true)
}

// ResumeCronJobCommand resumes a suspended cronjob through the optimistic
// state machine.
func (s *Service) ResumeCronJobCommand(ctx context.Context, namespace, name string) error {
	return s.setCronJobSuspend(ctx, namespace, name, false)
}

func (s *Service) setCronJobSuspend(
	ctx context.Context,
	namespace,
	name string,
	suspend bool,
) error {
	target := Target{Kind: snapshot.KindCronJob, Namespace: namespace, Name: name}

	prev, optimistic, err := s.beginMutation(target, func(st *State) {
		st.Suspended = suspend
	})
	if err != nil {
		return err
	}

	s.notify(optimistic)

	var res CronJobResult
	if suspend {
		res = s.repo.SuspendCronJobCommand(ctx, namespace, name)
	} else {
		res = s.repo.ResumeCronJobCommand(ctx, namespace, name)
	}

	if !res.Success {
		reverted := s.failMutation(target, prev)
		s.notify(reverted)
		s.reader.RequestRefresh()

		if res.Err != nil {
			return fmt.Errorf("set cronjob %s/%s suspend: %w", namespace, name, res.Err)
		}

		return fmt.Errorf("set cronjob %s/%s suspend: %w", namespace, name, ErrMutationFailed)
	}

	verifying := s.acceptMutation(target, func(snap *snapshot.Snapshot) bool {
		cj, found := snap.CronJobs[name]

		return found && cj.Suspend == suspend
	})
	s.notify(verifying)

	return nil
}

// TriggerCronJobCommand creates a one-off job from the cronjob's template.
// Triggering is not idempotent, so it bypasses the state machine entirely:
// no optimistic state, no cooldown, no verification.
func (s *Service) TriggerCronJobCommand(
	ctx context.Context,
	namespace,
	name string,
) (TriggerResult, error) {
	res := s.repo.TriggerCronJobCommand(ctx, namespace, name)
	if !res.Success {
		if res.Err != nil {
			return res, fmt.Errorf("trigger cronjob %s/%s: %w", namespace, name, res.Err)
		}

		return res, fmt.Errorf("trigger cronjob %s/%s: %w", namespace, name, ErrMutationFailed)
	}

	s.reader.RequestRefresh()

	return res, nil
}

// OnSnapshot reconciles sessions against a freshly published snapshot:
// new resources get sessions, idle sessions outside their cooldown take
// the observed state, and resources absent from two consecutive snapshots
// lose their session.
func (s *Service) OnSnapshot(snap *snapshot.Snapshot) {
	var changed []State

	s.mu.Lock()

	seen := make(map[Target]struct{}, len(snap.Deployments)+len(snap.StatefulSets)+len(snap.CronJobs))

	for name := range snap.Deployments {
		w := snap.Deployments[name]
		if st, ok := s.applyWorkload(w); ok {
			changed = append(changed, st)
		}

		seen[Target{Kind: snapshot.KindDeployment, Namespace: w.Namespace, Name: name}] = struct{}{}
	}

	for name := range snap.StatefulSets {
		w := snap.StatefulSets[name]
		if st, ok := s.applyWorkload(w); ok {
			changed = append(changed, st)
		}

		seen[Target{Kind: snapshot.KindStatefulSet, Namespace: w.Namespace, Name: name}] = struct{}{}
	}

	for name := range snap.CronJobs {
		cj := snap.CronJobs[name]
		if st, ok := s.applyCronJob(cj); ok {
			changed = append(changed, st)
		}

		seen[Target{Kind: snapshot.KindCronJob, Namespace: cj.Namespace, Name: name}] = struct{}{}
	}

	for target, sess := range s.sessions {
		if _, ok := seen[target]; ok {
			sess.missCount = 0

			continue
		}

		sess.missCount++

		if sess.missCount >= 2 {
			if sess.verifyCancel != nil {
				sess.verifyCancel()
			}

			delete(s.sessions, target)

			s.logger.Debug("removed orphaned control session",
				"kind", target.Kind,
				"namespace", target.Namespace,
				"name", target.Name,
			)
		}
	}

	s.mu.Unlock()

	for _, st := range changed {
		s.notify(st)
	}
}

func (s *Service) applyWorkload(w snapshot.Workload) (State, bool) {
	target := Target{Kind: w.Kind, Namespace: w.Namespace, Name: w.Name}

	sess, ok := s.sessions[target]
	if !ok {
		sess = &session{
			state: State{
				Target:   target,
				Phase:    PhaseIdle,
				Replicas: w.Replicas,
				Running:  w.Running,
			},
		}
		if w.Replicas > 0 {
			sess.lastRunningReplicas = w.Replicas
		}

		s.sessions[target] = sess

		return sess.state, true
	}

	sess.missCount = 0

	if w.Replicas > 0 {
		sess.lastRunningReplicas = w.Replicas
	}

	if !s.observable(sess) {
		return State{}, false
	}

	if sess.state.Replicas == w.Replicas && sess.state.Running == w.Running {
		return State{}, false
	}

	sess.state.Replicas = w.Replicas
	sess.state.Running = w.Running

	return sess.state, true
}

func (s *Service) applyCronJob(cj snapshot.CronJob) (State, bool) {
	target := Target{Kind: snapshot.KindCronJob, Namespace: cj.Namespace, Name: cj.Name}

	sess, ok := s.sessions[target]
	if !ok {
		sess = &session{
			state: State{
				Target:    target,
				Phase:     PhaseIdle,
				Suspended: cj.Suspend,
			},
		}

		s.sessions[target] = sess

		return sess.state, true
	}

	sess.missCount = 0

	if !s.observable(sess) {
		return State{}, false
	}

	if sess.state.Suspended == cj.Suspend {
		return State{}, false
	}

	sess.state.Suspended = cj.Suspend

	return sess.state, true
}

// observable reports whether snapshot state may overwrite the session.
// Pending mutations and active cooldowns keep the optimistic state in place.
func (s *Service) observable(sess *session) bool {
	if sess.state.Phase != PhaseIdle {
		return false
	}

	return !s.clk.Now().Before(sess.state.CooldownUntil)
}

// beginMutation validates the target, applies the optimistic state under
// lock and returns the previous and new published states.
func (s *Service) beginMutation(target Target, apply func(*State)) (State, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[target]
	if !ok {
		return State{}, State{}, fmt.Errorf(
			"%w: %s %s/%s", ErrUnknownTarget, target.Kind, target.Namespace, target.Name,
		)
	}

	if s.clk.Now().Before(sess.state.CooldownUntil) {
		return State{}, State{}, fmt.Errorf(
			"%w until %s", ErrCooldownActive, sess.state.CooldownUntil.Format(time.RFC3339),
		)
	}

	// A newer mutation supersedes any verification still in flight.
	if sess.verifyCancel != nil {
		sess.verifyCancel()
		sess.verifyCancel = nil
	}

	prev := sess.state

	if sess.state.Replicas > 0 {
		sess.lastRunningReplicas = sess.state.Replicas
	}

	sess.state.Phase = PhaseMutating
	sess.state.LastFailed = false
	sess.state.LastMutationAt = s.clk.Now()
	apply(&sess.state)

	return prev, sess.state, nil
}

// failMutation reverts the optimistic state after a rejected mutation.
func (s *Service) failMutation(target Target, prev State) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[target]
	if !ok {
		return prev
	}

	issuedAt := sess.state.LastMutationAt

	sess.state = prev
	sess.state.Phase = PhaseIdle
	sess.state.LastFailed = true
	sess.state.LastMutationAt = issuedAt

	return sess.state
}

// acceptMutation moves the session to verifying, arms the cooldown and
// spawns the convergence poll.
func (s *Service) acceptMutation(
	target Target,
	converged func(*snapshot.Snapshot) bool,
) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[target]
	if !ok {
		return State{}
	}

	sess.state.Phase = PhaseVerifying
	sess.state.CooldownUntil = s.clk.Now().Add(s.settings.Cooldown)
	sess.verifyGen++

	gen := sess.verifyGen

	runCtx := s.runCtx
	if runCtx == nil {
		// Not started: no background poll, resolve on the next snapshot.
		runCtx = context.Background()
	}

	verifyCtx, cancel := context.WithTimeout(runCtx, s.settings.VerificationTimeout)
	sess.verifyCancel = cancel

	s.wg.Add(1)

	go s.verify(verifyCtx, cancel, target, gen, converged)

	return sess.state
}

// verify polls fresh snapshots until the cluster reflects the mutation or
// the timeout elapses. Either way the session returns to idle.
func (s *Service) verify(
	ctx context.Context,
	cancel context.CancelFunc,
	target Target,
	gen uint64,
	converged func(*snapshot.Snapshot) bool,
) {
	defer s.wg.Done()
	defer cancel()

	ticker := time.NewTicker(s.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cancellation means shutdown or a superseding mutation;
			// only an elapsed deadline counts as a verification timeout.
			if ctx.Err() == context.DeadlineExceeded {
				s.finishVerify(target, gen, "timeout")
			}

			return
		case <-ticker.C:
		}

		snap, err := s.reader.RefreshCommand(ctx)
		if err != nil {
			continue
		}

		if converged(snap) {
			s.finishVerify(target, gen, "converged")

			return
		}
	}
}

func (s *Service) finishVerify(target Target, gen uint64, result string) {
	s.mu.Lock()

	sess, ok := s.sessions[target]
	if !ok || sess.verifyGen != gen {
		// Superseded by a newer mutation or the session is gone.
		s.mu.Unlock()

		return
	}

	sess.state.Phase = PhaseIdle
	sess.verifyCancel = nil
	st := sess.state

	s.mu.Unlock()

	metrics.RecordVerification(result)

	if result == "timeout" {
		s.logger.Warn("mutation verification timed out",
			"kind", target.Kind,
			"namespace", target.Namespace,
			"name", target.Name,
		)
	}

	s.notify(st)
}

func (s *Service) notify(st State) {
	if st.Target.Name == "" {
		return
	}

	s.mu.Lock()
	observers := make([]func(State), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}

func lookupWorkload(snap *snapshot.Snapshot, kind snapshot.Kind, name string) (snapshot.Workload, bool) {
	switch kind {
	case snapshot.KindDeployment:
		w, ok := snap.Deployments[name]

		return w, ok
	case snapshot.KindStatefulSet:
		w, ok := snap.StatefulSets[name]

		return w, ok
	default:
		return snapshot.Workload{}, false
	}
}
