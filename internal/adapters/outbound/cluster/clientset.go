package cluster

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

// clientsetTransport is the structured fallback transport built on the
// official API client. It is tried when the raw HTTP transport fails.
type clientsetTransport struct {
	desc      ConnectionDescriptor
	clientset kubernetes.Interface
	clk       clock.Clock
}

func newClientsetTransport(desc ConnectionDescriptor, clk clock.Clock) (*clientsetTransport, error) {
	restConfig := &rest.Config{
		Host:        desc.BaseURL(),
		BearerToken: desc.APIToken,
		Timeout:     requestTimeout,
	}

	if !desc.VerifyTLS {
		restConfig.TLSClientConfig = rest.TLSClientConfig{Insecure: true}
	} else if len(desc.CACert) > 0 {
		restConfig.TLSClientConfig = rest.TLSClientConfig{CAData: desc.CACert}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}

	return &clientsetTransport{
		desc:      desc,
		clientset: clientset,
		clk:       clk,
	}, nil
}

func newClientsetTransportWith(
	desc ConnectionDescriptor,
	clientset kubernetes.Interface,
	clk clock.Clock,
) *clientsetTransport {
	return &clientsetTransport{
		desc:      desc,
		clientset: clientset,
		clk:       clk,
	}
}

var _ transport = (*clientsetTransport)(nil)

func (t *clientsetTransport) Name() string {
	return "clientset"
}

// listNamespace returns the namespace argument for list calls; empty means
// all namespaces.
func (t *clientsetTransport) listNamespace() string {
	if t.desc.AllNamespaces {
		return metav1.NamespaceAll
	}

	return t.desc.Namespace
}

func (t *clientsetTransport) Probe(ctx context.Context) bool {
	_, err := t.clientset.Discovery().ServerVersion()
	if err != nil {
		return false
	}

	return ctx.Err() == nil
}

func (t *clientsetTransport) ListDeployments(ctx context.Context) ([]snapshot.Workload, error) {
	list, err := t.clientset.AppsV1().Deployments(t.listNamespace()).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	out := make([]snapshot.Workload, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, toDomainWorkload(snapshot.KindDeployment, deploymentMeta(&list.Items[i])))
	}

	return out, nil
}

func (t *clientsetTransport) ListStatefulSets(ctx context.Context) ([]snapshot.Workload, error) {
	list, err := t.clientset.AppsV1().StatefulSets(t.listNamespace()).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list statefulsets: %w", err)
	}

	out := make([]snapshot.Workload, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, toDomainWorkload(snapshot.KindStatefulSet, statefulSetMeta(&list.Items[i])))
	}

	return out, nil
}

func (t *clientsetTransport) ListCronJobs(ctx context.Context) ([]snapshot.CronJob, error) {
	list, err := t.clientset.BatchV1().CronJobs(t.listNamespace()).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list cronjobs: %w", err)
	}

	now := t.clk.Now()

	out := make([]snapshot.CronJob, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, toDomainCronJob(&list.Items[i], now))
	}

	return out, nil
}

func (t *clientsetTransport) ListNodes(ctx context.Context) ([]snapshot.Node, error) {
	list, err := t.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	out := make([]snapshot.Node, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, toDomainNode(&list.Items[i]))
	}

	return out, nil
}

func (t *clientsetTransport) ListPods(ctx context.Context) ([]snapshot.Pod, error) {
	list, err := t.clientset.CoreV1().Pods(t.listNamespace()).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	out := make([]snapshot.Pod, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, toDomainPod(&list.Items[i]))
	}

	return out, nil
}

// ScaleWorkload replaces the whole object after a read. A writer racing
// between the get and the update loses its change.
func (t *clientsetTransport) ScaleWorkload(
	ctx context.Context,
	kind snapshot.Kind,
	namespace,
	name string,
	replicas int32,
) error {
	switch kind {
	case snapshot.KindDeployment:
		deployment, err := t.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("get deployment: %w", err)
		}

		deployment.Spec.Replicas = &replicas

		_, err = t.clientset.AppsV1().Deployments(namespace).Update(ctx, deployment, metav1.UpdateOptions{})
		if err != nil {
			return fmt.Errorf("update deployment: %w", err)
		}

		return nil
	case snapshot.KindStatefulSet:
		statefulSet, err := t.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("get statefulset: %w", err)
		}

		statefulSet.Spec.Replicas = &replicas

		_, err = t.clientset.AppsV1().StatefulSets(namespace).Update(ctx, statefulSet, metav1.UpdateOptions{})
		if err != nil {
			return fmt.Errorf("update statefulset: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("kind %s is not scalable", kind)
	}
}

func (t *clientsetTransport) SetCronJobSuspend(
	ctx context.Context,
	namespace,
	name string,
	suspend bool,
) error {
	patch := fmt.Sprintf(`{"spec":{"suspend":%t}}`, suspend)

	_, err := t.clientset.BatchV1().CronJobs(namespace).Patch(
		ctx,
		name,
		types.MergePatchType,
		[]byte(patch),
		metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("patch cronjob suspend: %w", err)
	}

	return nil
}

func (t *clientsetTransport) TriggerCronJob(
	ctx context.Context,
	namespace,
	name,
	jobName string,
) (string, error) {
	cronJob, err := t.clientset.BatchV1().CronJobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get cronjob: %w", err)
	}

	labels := make(map[string]string, len(cronJob.Spec.JobTemplate.Labels)+2)
	for k, v := range cronJob.Spec.JobTemplate.Labels {
		labels[k] = v
	}

	labels[manualJobLabel] = "true"
	labels[cronJobNameLabel] = name

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: cronJob.Spec.JobTemplate.Spec,
	}

	created, err := t.clientset.BatchV1().Jobs(namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	return string(created.UID), nil
}
