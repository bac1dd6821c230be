package snapshot

import "time"

// Kind identifies a monitored resource kind.
type Kind string

const (
	KindDeployment  Kind = "deployment"
	KindStatefulSet Kind = "statefulset"
	KindCronJob     Kind = "cronjob"
	KindNode        Kind = "node"
	KindPod         Kind = "pod"
)

// Workload represents a Deployment or StatefulSet in the domain layer.
type Workload struct {
	Kind              Kind
	Name              string
	Namespace         string
	UID               string
	CreatedAt         time.Time
	Replicas          int32
	AvailableReplicas int32
	ReadyReplicas     int32

	// Running is true when the workload has at least one desired replica.
	Running bool
}

// CronJob represents a CronJob in the domain layer.
type CronJob struct {
	Name      string
	Namespace string
	UID       string
	CreatedAt time.Time

	Schedule   string
	TimeZone   string
	Suspend    bool
	ActiveJobs int

	LastScheduleTime *time.Time
	NextScheduleTime *time.Time

	SuccessfulJobsHistoryLimit int32
	FailedJobsHistoryLimit     int32
	ConcurrencyPolicy          string
}

// Pod represents a pod in the domain layer.
type Pod struct {
	Name      string
	Namespace string
	UID       string
	CreatedAt time.Time

	Phase           string
	ReadyContainers int
	TotalContainers int
	RestartCount    int
	NodeName        string
	PodIP           string
	OwnerKind       string
	OwnerName       string
}

// Node represents a cluster node in the domain layer.
type Node struct {
	Name      string
	UID       string
	CreatedAt time.Time

	Ready       bool
	Schedulable bool
	InternalIP  string
	ExternalIP  string

	CPUCores             float64
	MemoryCapacityGiB    float64
	MemoryAllocatableGiB float64

	OSImage          string
	KernelVersion    string
	ContainerRuntime string
	KubeletVersion   string
}

// Snapshot is one immutable, internally consistent view of the cluster.
// Maps are keyed by resource name; consumers must not mutate them.
type Snapshot struct {
	Deployments  map[string]Workload
	StatefulSets map[string]Workload
	CronJobs     map[string]CronJob
	Nodes        map[string]Node
	Pods         []Pod
	PodsCount    int
	RefreshedAt  time.Time
}
