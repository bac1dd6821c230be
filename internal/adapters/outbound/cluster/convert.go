package cluster

import (
	"math"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/kubebridge/kubebridge/internal/infra/cronparser"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

const (
	manualJobLabel   = "cronjob.kubernetes.io/manual"
	cronJobNameLabel = "cronjob.kubernetes.io/name"

	// API server defaults applied when the spec omits the fields.
	defaultSuccessfulJobsHistoryLimit = int32(3)
	defaultFailedJobsHistoryLimit     = int32(1)
	defaultConcurrencyPolicy          = "Allow"

	bytesPerGiB = float64(1 << 30)
)

var _cronParser = cronparser.New()

// nextRunTime computes the next schedule occurrence. The API server never
// populates this, so it is derived locally. Unparseable schedules yield nil.
func nextRunTime(schedule, tz string, after time.Time) *time.Time {
	next, err := _cronParser.NextAfter(schedule, tz, after)
	if err != nil || next.IsZero() {
		return nil
	}

	return &next
}

func parseCores(s string) float64 {
	if s == "" {
		return 0
	}

	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}

	return roundTwo(q.AsApproximateFloat64())
}

func parseGiB(s string) float64 {
	if s == "" {
		return 0
	}

	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}

	return quantityGiB(q)
}

func quantityGiB(q resource.Quantity) float64 {
	return roundTwo(q.AsApproximateFloat64() / bytesPerGiB)
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}

func toDomainWorkload(kind snapshot.Kind, meta workloadMeta) snapshot.Workload {
	return snapshot.Workload{
		Kind:              kind,
		Name:              meta.name,
		Namespace:         meta.namespace,
		UID:               meta.uid,
		CreatedAt:         meta.createdAt,
		Replicas:          meta.replicas,
		AvailableReplicas: meta.available,
		ReadyReplicas:     meta.ready,
		Running:           meta.replicas > 0,
	}
}

// workloadMeta flattens the fields shared by deployments and statefulsets.
type workloadMeta struct {
	name      string
	namespace string
	uid       string
	createdAt time.Time
	replicas  int32
	available int32
	ready     int32
}

func deploymentMeta(d *appsv1.Deployment) workloadMeta {
	replicas := int32(0)
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}

	return workloadMeta{
		name:      d.Name,
		namespace: d.Namespace,
		uid:       string(d.UID),
		createdAt: d.CreationTimestamp.Time,
		replicas:  replicas,
		available: d.Status.AvailableReplicas,
		ready:     d.Status.ReadyReplicas,
	}
}

func statefulSetMeta(s *appsv1.StatefulSet) workloadMeta {
	replicas := int32(0)
	if s.Spec.Replicas != nil {
		replicas = *s.Spec.Replicas
	}

	return workloadMeta{
		name:      s.Name,
		namespace: s.Namespace,
		uid:       string(s.UID),
		createdAt: s.CreationTimestamp.Time,
		replicas:  replicas,
		available: s.Status.AvailableReplicas,
		ready:     s.Status.ReadyReplicas,
	}
}

func toDomainCronJob(cj *batchv1.CronJob, now time.Time) snapshot.CronJob {
	out := snapshot.CronJob{
		Name:                       cj.Name,
		Namespace:                  cj.Namespace,
		UID:                        string(cj.UID),
		CreatedAt:                  cj.CreationTimestamp.Time,
		Schedule:                   cj.Spec.Schedule,
		ActiveJobs:                 len(cj.Status.Active),
		SuccessfulJobsHistoryLimit: defaultSuccessfulJobsHistoryLimit,
		FailedJobsHistoryLimit:     defaultFailedJobsHistoryLimit,
		ConcurrencyPolicy:          defaultConcurrencyPolicy,
	}

	if cj.Spec.TimeZone != nil {
		out.TimeZone = *cj.Spec.TimeZone
	}

	if cj.Spec.Suspend != nil {
		out.Suspend = *cj.Spec.Suspend
	}

	if cj.Spec.ConcurrencyPolicy != "" {
		out.ConcurrencyPolicy = string(cj.Spec.ConcurrencyPolicy)
	}

	if cj.Spec.SuccessfulJobsHistoryLimit != nil {
		out.SuccessfulJobsHistoryLimit = *cj.Spec.SuccessfulJobsHistoryLimit
	}

	if cj.Spec.FailedJobsHistoryLimit != nil {
		out.FailedJobsHistoryLimit = *cj.Spec.FailedJobsHistoryLimit
	}

	if cj.Status.LastScheduleTime != nil {
		lst := cj.Status.LastScheduleTime.Time
		out.LastScheduleTime = &lst
	}

	if !out.Suspend {
		out.NextScheduleTime = nextRunTime(out.Schedule, out.TimeZone, now)
	}

	return out
}

func toDomainNode(n *corev1.Node) snapshot.Node {
	out := snapshot.Node{
		Name:             n.Name,
		UID:              string(n.UID),
		CreatedAt:        n.CreationTimestamp.Time,
		Schedulable:      !n.Spec.Unschedulable,
		OSImage:          n.Status.NodeInfo.OSImage,
		KernelVersion:    n.Status.NodeInfo.KernelVersion,
		ContainerRuntime: n.Status.NodeInfo.ContainerRuntimeVersion,
		KubeletVersion:   n.Status.NodeInfo.KubeletVersion,
	}

	if cpu, ok := n.Status.Capacity[corev1.ResourceCPU]; ok {
		out.CPUCores = roundTwo(cpu.AsApproximateFloat64())
	}

	if mem, ok := n.Status.Capacity[corev1.ResourceMemory]; ok {
		out.MemoryCapacityGiB = quantityGiB(mem)
	}

	if mem, ok := n.Status.Allocatable[corev1.ResourceMemory]; ok {
		out.MemoryAllocatableGiB = quantityGiB(mem)
	}

	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			out.Ready = cond.Status == corev1.ConditionTrue
		}
	}

	for _, addr := range n.Status.Addresses {
		switch addr.Type {
		case corev1.NodeInternalIP:
			out.InternalIP = addr.Address
		case corev1.NodeExternalIP:
			out.ExternalIP = addr.Address
		}
	}

	return out
}

func toDomainPod(p *corev1.Pod) snapshot.Pod {
	out := snapshot.Pod{
		Name:            p.Name,
		Namespace:       p.Namespace,
		UID:             string(p.UID),
		CreatedAt:       p.CreationTimestamp.Time,
		Phase:           string(p.Status.Phase),
		TotalContainers: len(p.Spec.Containers),
		NodeName:        p.Spec.NodeName,
		PodIP:           p.Status.PodIP,
	}

	for _, status := range p.Status.ContainerStatuses {
		if status.Ready {
			out.ReadyContainers++
		}

		out.RestartCount += int(status.RestartCount)
	}

	if len(p.OwnerReferences) > 0 {
		out.OwnerKind = p.OwnerReferences[0].Kind
		out.OwnerName = p.OwnerReferences[0].Name
	}

	return out
}
