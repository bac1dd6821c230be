package control

import (
	"time"

	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// Phase is the lifecycle phase of a controlled resource.
type Phase string

const (
	// PhaseIdle means no mutation is in flight; observed cluster state
	// flows through on every snapshot.
	PhaseIdle Phase = "idle"

	// PhaseMutating means a mutation call is in flight and the published
	// state is the optimistic target.
	PhaseMutating Phase = "mutating"

	// PhaseVerifying means the mutation was accepted and a background poll
	// is waiting for the cluster to converge on the target.
	PhaseVerifying Phase = "verifying"
)

// Target identifies one controlled resource.
type Target struct {
	Kind      snapshot.Kind
	Namespace string
	Name      string
}

// State is the published control state of one resource.
type State struct {
	Target Target
	Phase  Phase

	// Workload state. Replicas is the observed count, or the optimistic
	// target while a mutation is pending.
	Replicas int32
	Running  bool

	// CronJob state.
	Suspended bool

	// LastFailed reports whether the most recent mutation was rejected.
	LastFailed bool

	// LastMutationAt is when the most recent mutation was issued. Zero
	// until the first mutation.
	LastMutationAt time.Time

	// CooldownUntil is the end of the post-mutation window during which
	// further mutations are rejected and observed state is not applied.
	CooldownUntil time.Time
}

// CronJobResult is the outcome of a suspend or resume call.
type CronJobResult struct {
	Success     bool
	CronJobName string
	Namespace   string
	Err         error
}

// TriggerResult is the outcome of a manual cronjob trigger.
type TriggerResult struct {
	Success     bool
	JobName     string
	JobUID      string
	CronJobName string
	Namespace   string
	Err         error
}

// Settings tunes the mutation state machine.
type Settings struct {
	// VerificationTimeout bounds how long a background verification poll
	// may wait for convergence.
	VerificationTimeout time.Duration

	// Cooldown is the post-mutation window during which further mutations
	// are rejected and snapshot state is not applied to the session.
	Cooldown time.Duration

	// PollInterval is the cadence of verification refreshes.
	PollInterval time.Duration
}

const (
	defaultVerificationTimeout = 30 * time.Second
	defaultCooldown            = 10 * time.Second
	defaultPollInterval        = 5 * time.Second
)

func (s Settings) withDefaults() Settings {
	if s.VerificationTimeout <= 0 {
		s.VerificationTimeout = defaultVerificationTimeout
	}

	if s.Cooldown <= 0 {
		s.Cooldown = defaultCooldown
	}

	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}

	return s
}
