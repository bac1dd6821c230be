package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

func int32Ptr(v int32) *int32 { return &v }

func boolPtr(v bool) *bool { return &v }

func newFakeClientsetTransport(objects ...runtime.Object) *clientsetTransport {
	clientset := fake.NewClientset(objects...)
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	desc := ConnectionDescriptor{
		Host:        "10.0.0.10",
		Port:        6443,
		APIToken:    "token",
		ClusterName: "test",
		Namespace:   "default",
	}

	return newClientsetTransportWith(desc, clientset, clk)
}

func TestClientsetTransport_ListDeployments(t *testing.T) {
	t.Parallel()

	tr := newFakeClientsetTransport(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "web",
			Namespace: "default",
			UID:       "uid-1",
		},
		Spec:   appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
		Status: appsv1.DeploymentStatus{ReadyReplicas: 3, AvailableReplicas: 3},
	})

	got, err := tr.ListDeployments(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, snapshot.KindDeployment, got[0].Kind)
	assert.Equal(t, "web", got[0].Name)
	assert.Equal(t, int32(3), got[0].Replicas)
	assert.True(t, got[0].Running)
}

func TestClientsetTransport_ListDeployments_NamespaceScoped(t *testing.T) {
	t.Parallel()

	tr := newFakeClientsetTransport(
		&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"}},
		&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "other", Namespace: "kube-system"}},
	)

	got, err := tr.ListDeployments(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web", got[0].Name)

	tr.desc.AllNamespaces = true

	got, err = tr.ListDeployments(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClientsetTransport_ListCronJobs(t *testing.T) {
	t.Parallel()

	last := metav1.NewTime(time.Date(2026, 2, 28, 3, 0, 0, 0, time.UTC))

	tr := newFakeClientsetTransport(&batchv1.CronJob{
		ObjectMeta: metav1.ObjectMeta{Name: "backup", Namespace: "default"},
		Spec: batchv1.CronJobSpec{
			Schedule:          "0 3 * * *",
			Suspend:           boolPtr(false),
			ConcurrencyPolicy: batchv1.ForbidConcurrent,
		},
		Status: batchv1.CronJobStatus{
			Active:           []corev1.ObjectReference{{Name: "backup-29100000"}},
			LastScheduleTime: &last,
		},
	})

	got, err := tr.ListCronJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	cj := got[0]
	assert.Equal(t, "Forbid", cj.ConcurrencyPolicy)
	assert.Equal(t, 1, cj.ActiveJobs)
	assert.Equal(t, int32(3), cj.SuccessfulJobsHistoryLimit)
	assert.Equal(t, int32(1), cj.FailedJobsHistoryLimit)

	require.NotNil(t, cj.NextScheduleTime)
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), cj.NextScheduleTime.UTC())
}

func TestClientsetTransport_ListNodes(t *testing.T) {
	t.Parallel()

	tr := newFakeClientsetTransport(&corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
			},
			Addresses: []corev1.NodeAddress{
				{Type: corev1.NodeInternalIP, Address: "10.0.0.11"},
			},
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("8"),
				corev1.ResourceMemory: resource.MustParse("32Gi"),
			},
			Allocatable: corev1.ResourceList{
				corev1.ResourceMemory: resource.MustParse("31Gi"),
			},
			NodeInfo: corev1.NodeSystemInfo{KubeletVersion: "v1.32.0"},
		},
	})

	got, err := tr.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	node := got[0]
	assert.True(t, node.Ready)
	assert.True(t, node.Schedulable)
	assert.InDelta(t, 8.0, node.CPUCores, 0.001)
	assert.InDelta(t, 32.0, node.MemoryCapacityGiB, 0.001)
	assert.InDelta(t, 31.0, node.MemoryAllocatableGiB, 0.001)
}

func TestClientsetTransport_ScaleWorkload(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(1)},
	})

	tr := newClientsetTransportWith(
		ConnectionDescriptor{Namespace: "default"},
		clientset,
		clock.NewFake(time.Now()),
	)

	err := tr.ScaleWorkload(context.Background(), snapshot.KindDeployment, "default", "web", 4)
	require.NoError(t, err)

	updated, err := clientset.AppsV1().Deployments("default").Get(
		context.Background(), "web", metav1.GetOptions{},
	)
	require.NoError(t, err)
	require.NotNil(t, updated.Spec.Replicas)
	assert.Equal(t, int32(4), *updated.Spec.Replicas)
}

func TestClientsetTransport_ScaleWorkload_NotFound(t *testing.T) {
	t.Parallel()

	tr := newFakeClientsetTransport()

	err := tr.ScaleWorkload(context.Background(), snapshot.KindDeployment, "default", "missing", 2)
	require.Error(t, err)
	assert.Equal(t, categoryNotFound, classify(err))
}

func TestClientsetTransport_SetCronJobSuspend(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(&batchv1.CronJob{
		ObjectMeta: metav1.ObjectMeta{Name: "backup", Namespace: "default"},
		Spec:       batchv1.CronJobSpec{Schedule: "0 3 * * *", Suspend: boolPtr(false)},
	})

	tr := newClientsetTransportWith(
		ConnectionDescriptor{Namespace: "default"},
		clientset,
		clock.NewFake(time.Now()),
	)

	err := tr.SetCronJobSuspend(context.Background(), "default", "backup", true)
	require.NoError(t, err)

	updated, err := clientset.BatchV1().CronJobs("default").Get(
		context.Background(), "backup", metav1.GetOptions{},
	)
	require.NoError(t, err)
	require.NotNil(t, updated.Spec.Suspend)
	assert.True(t, *updated.Spec.Suspend)
}

func TestClientsetTransport_TriggerCronJob(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(&batchv1.CronJob{
		ObjectMeta: metav1.ObjectMeta{Name: "backup", Namespace: "default"},
		Spec: batchv1.CronJobSpec{
			Schedule: "0 3 * * *",
			JobTemplate: batchv1.JobTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "backup"}},
				Spec: batchv1.JobSpec{
					Template: corev1.PodTemplateSpec{
						Spec: corev1.PodSpec{
							Containers:    []corev1.Container{{Name: "run", Image: "backup:1"}},
							RestartPolicy: corev1.RestartPolicyNever,
						},
					},
				},
			},
		},
	})

	tr := newClientsetTransportWith(
		ConnectionDescriptor{Namespace: "default"},
		clientset,
		clock.NewFake(time.Now()),
	)

	_, err := tr.TriggerCronJob(context.Background(), "default", "backup", "backup-manual-99")
	require.NoError(t, err)

	job, err := clientset.BatchV1().Jobs("default").Get(
		context.Background(), "backup-manual-99", metav1.GetOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "true", job.Labels[manualJobLabel])
	assert.Equal(t, "backup", job.Labels[cronJobNameLabel])
	assert.Equal(t, "backup", job.Labels["app"])
	assert.Equal(t, "backup:1", job.Spec.Template.Spec.Containers[0].Image)
}
