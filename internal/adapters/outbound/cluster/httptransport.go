package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kubebridge/kubebridge/internal/infra/clock"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

const (
	requestTimeout = 10 * time.Second

	appsV1Prefix  = "/apis/apps/v1"
	batchV1Prefix = "/apis/batch/v1"
	coreV1Prefix  = "/api/v1"

	strategicMergePatchContentType = "application/strategic-merge-patch+json"
	jsonContentType                = "application/json"
)

// httpTransport talks to the API server over plain HTTPS with a bearer
// token. It is the primary transport: cheaper than the structured client
// and tolerant of partial API discovery failures.
type httpTransport struct {
	desc   ConnectionDescriptor
	client *http.Client
	clk    clock.Clock
}

func newHTTPTransport(desc ConnectionDescriptor, clk clock.Clock) *httpTransport {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if !desc.VerifyTLS {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // explicit operator opt-out
	} else if len(desc.CACert) > 0 {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(desc.CACert)
		tlsConfig.RootCAs = pool
	}

	return &httpTransport{
		desc: desc,
		clk:  clk,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}
}

var _ transport = (*httpTransport)(nil)

func (t *httpTransport) Name() string {
	return "http"
}

func (t *httpTransport) Probe(ctx context.Context) bool {
	return t.do(ctx, http.MethodGet, "/version", "", nil, nil) == nil
}

func (t *httpTransport) do(
	ctx context.Context,
	method,
	path,
	contentType string,
	body []byte,
	out any,
) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.desc.BaseURL()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+t.desc.APIToken)
	req.Header.Set("Accept", jsonContentType)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: %w", method, path, newAPIError(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}

	return nil
}

func newAPIError(resp *http.Response) *apiError {
	apiErr := &apiError{status: resp.StatusCode}

	var status struct {
		Message string `json:"message"`
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&status); err == nil {
		apiErr.reason = status.Message
	}

	return apiErr
}

// listPath builds a collection URL honoring the namespace scope.
func (t *httpTransport) listPath(prefix, resource string) string {
	if t.desc.AllNamespaces {
		return prefix + "/" + resource
	}

	return prefix + "/namespaces/" + t.desc.Namespace + "/" + resource
}

func namespacedPath(prefix, namespace, resource, name string) string {
	return prefix + "/namespaces/" + namespace + "/" + resource + "/" + name
}

// Wire shapes for the handful of fields we read off raw API responses.

type wireMeta struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace"`
	UID               string            `json:"uid"`
	CreationTimestamp time.Time         `json:"creationTimestamp"`
	Labels            map[string]string `json:"labels"`
	OwnerReferences   []struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	} `json:"ownerReferences"`
}

type wireWorkload struct {
	Metadata wireMeta `json:"metadata"`
	Spec     struct {
		Replicas *int32 `json:"replicas"`
	} `json:"spec"`
	Status struct {
		ReadyReplicas     int32 `json:"readyReplicas"`
		AvailableReplicas int32 `json:"availableReplicas"`
	} `json:"status"`
}

type wireWorkloadList struct {
	Items []wireWorkload `json:"items"`
}

type wireCronJob struct {
	Metadata wireMeta `json:"metadata"`
	Spec     struct {
		Schedule                   string          `json:"schedule"`
		TimeZone                   *string         `json:"timeZone"`
		Suspend                    *bool           `json:"suspend"`
		ConcurrencyPolicy          string          `json:"concurrencyPolicy"`
		SuccessfulJobsHistoryLimit *int32          `json:"successfulJobsHistoryLimit"`
		FailedJobsHistoryLimit     *int32          `json:"failedJobsHistoryLimit"`
		JobTemplate                json.RawMessage `json:"jobTemplate"`
	} `json:"spec"`
	Status struct {
		Active           []json.RawMessage `json:"active"`
		LastScheduleTime *time.Time        `json:"lastScheduleTime"`
	} `json:"status"`
}

type wireCronJobList struct {
	Items []wireCronJob `json:"items"`
}

type wireNode struct {
	Metadata wireMeta `json:"metadata"`
	Spec     struct {
		Unschedulable bool `json:"unschedulable"`
	} `json:"spec"`
	Status struct {
		Conditions []struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		} `json:"conditions"`
		Addresses []struct {
			Type    string `json:"type"`
			Address string `json:"address"`
		} `json:"addresses"`
		Capacity    map[string]string `json:"capacity"`
		Allocatable map[string]string `json:"allocatable"`
		NodeInfo    struct {
			OSImage                 string `json:"osImage"`
			KernelVersion           string `json:"kernelVersion"`
			ContainerRuntimeVersion string `json:"containerRuntimeVersion"`
			KubeletVersion          string `json:"kubeletVersion"`
		} `json:"nodeInfo"`
	} `json:"status"`
}

type wireNodeList struct {
	Items []wireNode `json:"items"`
}

type wirePod struct {
	Metadata wireMeta `json:"metadata"`
	Spec     struct {
		NodeName   string            `json:"nodeName"`
		Containers []json.RawMessage `json:"containers"`
	} `json:"spec"`
	Status struct {
		Phase             string `json:"phase"`
		PodIP             string `json:"podIP"`
		ContainerStatuses []struct {
			Ready        bool  `json:"ready"`
			RestartCount int32 `json:"restartCount"`
		} `json:"containerStatuses"`
	} `json:"status"`
}

type wirePodList struct {
	Items []wirePod `json:"items"`
}

func (t *httpTransport) listWorkloads(
	ctx context.Context,
	resource string,
	kind snapshot.Kind,
) ([]snapshot.Workload, error) {
	var list wireWorkloadList
	if err := t.do(ctx, http.MethodGet, t.listPath(appsV1Prefix, resource), "", nil, &list); err != nil {
		return nil, err
	}

	out := make([]snapshot.Workload, 0, len(list.Items))

	for i := range list.Items {
		item := &list.Items[i]

		replicas := int32(0)
		if item.Spec.Replicas != nil {
			replicas = *item.Spec.Replicas
		}

		out = append(out, snapshot.Workload{
			Kind:              kind,
			Name:              item.Metadata.Name,
			Namespace:         item.Metadata.Namespace,
			UID:               item.Metadata.UID,
			CreatedAt:         item.Metadata.CreationTimestamp,
			Replicas:          replicas,
			AvailableReplicas: item.Status.AvailableReplicas,
			ReadyReplicas:     item.Status.ReadyReplicas,
			Running:           replicas > 0,
		})
	}

	return out, nil
}

func (t *httpTransport) ListDeployments(ctx context.Context) ([]snapshot.Workload, error) {
	return t.listWorkloads(ctx, "deployments", snapshot.KindDeployment)
}

func (t *httpTransport) ListStatefulSets(ctx context.Context) ([]snapshot.Workload, error) {
	return t.listWorkloads(ctx, "statefulsets", snapshot.KindStatefulSet)
}

func (t *httpTransport) ListCronJobs(ctx context.Context) ([]snapshot.CronJob, error) {
	var list wireCronJobList
	if err := t.do(ctx, http.MethodGet, t.listPath(batchV1Prefix, "cronjobs"), "", nil, &list); err != nil {
		return nil, err
	}

	now := t.clk.Now()
	out := make([]snapshot.CronJob, 0, len(list.Items))

	for i := range list.Items {
		item := &list.Items[i]

		cj := snapshot.CronJob{
			Name:                       item.Metadata.Name,
			Namespace:                  item.Metadata.Namespace,
			UID:                        item.Metadata.UID,
			CreatedAt:                  item.Metadata.CreationTimestamp,
			Schedule:                   item.Spec.Schedule,
			ActiveJobs:                 len(item.Status.Active),
			LastScheduleTime:           item.Status.LastScheduleTime,
			SuccessfulJobsHistoryLimit: defaultSuccessfulJobsHistoryLimit,
			FailedJobsHistoryLimit:     defaultFailedJobsHistoryLimit,
			ConcurrencyPolicy:          defaultConcurrencyPolicy,
		}

		if item.Spec.TimeZone != nil {
			cj.TimeZone = *item.Spec.TimeZone
		}

		if item.Spec.Suspend != nil {
			cj.Suspend = *item.Spec.Suspend
		}

		if item.Spec.ConcurrencyPolicy != "" {
			cj.ConcurrencyPolicy = item.Spec.ConcurrencyPolicy
		}

		if item.Spec.SuccessfulJobsHistoryLimit != nil {
			cj.SuccessfulJobsHistoryLimit = *item.Spec.SuccessfulJobsHistoryLimit
		}

		if item.Spec.FailedJobsHistoryLimit != nil {
			cj.FailedJobsHistoryLimit = *item.Spec.FailedJobsHistoryLimit
		}

		if !cj.Suspend {
			cj.NextScheduleTime = nextRunTime(cj.Schedule, cj.TimeZone, now)
		}

		out = append(out, cj)
	}

	return out, nil
}

func (t *httpTransport) ListNodes(ctx context.Context) ([]snapshot.Node, error) {
	var list wireNodeList
	if err := t.do(ctx, http.MethodGet, coreV1Prefix+"/nodes", "", nil, &list); err != nil {
		return nil, err
	}

	out := make([]snapshot.Node, 0, len(list.Items))

	for i := range list.Items {
		item := &list.Items[i]

		node := snapshot.Node{
			Name:                 item.Metadata.Name,
			UID:                  item.Metadata.UID,
			CreatedAt:            item.Metadata.CreationTimestamp,
			Schedulable:          !item.Spec.Unschedulable,
			CPUCores:             parseCores(item.Status.Capacity["cpu"]),
			MemoryCapacityGiB:    parseGiB(item.Status.Capacity["memory"]),
			MemoryAllocatableGiB: parseGiB(item.Status.Allocatable["memory"]),
			OSImage:              item.Status.NodeInfo.OSImage,
			KernelVersion:        item.Status.NodeInfo.KernelVersion,
			ContainerRuntime:     item.Status.NodeInfo.ContainerRuntimeVersion,
			KubeletVersion:       item.Status.NodeInfo.KubeletVersion,
		}

		for _, cond := range item.Status.Conditions {
			if cond.Type == "Ready" {
				node.Ready = cond.Status == "True"
			}
		}

		for _, addr := range item.Status.Addresses {
			switch addr.Type {
			case "InternalIP":
				node.InternalIP = addr.Address
			case "ExternalIP":
				node.ExternalIP = addr.Address
			}
		}

		out = append(out, node)
	}

	return out, nil
}

func (t *httpTransport) ListPods(ctx context.Context) ([]snapshot.Pod, error) {
	var list wirePodList
	if err := t.do(ctx, http.MethodGet, t.listPath(coreV1Prefix, "pods"), "", nil, &list); err != nil {
		return nil, err
	}

	out := make([]snapshot.Pod, 0, len(list.Items))

	for i := range list.Items {
		item := &list.Items[i]

		pod := snapshot.Pod{
			Name:            item.Metadata.Name,
			Namespace:       item.Metadata.Namespace,
			UID:             item.Metadata.UID,
			CreatedAt:       item.Metadata.CreationTimestamp,
			Phase:           item.Status.Phase,
			TotalContainers: len(item.Spec.Containers),
			NodeName:        item.Spec.NodeName,
			PodIP:           item.Status.PodIP,
		}

		for _, status := range item.Status.ContainerStatuses {
			if status.Ready {
				pod.ReadyContainers++
			}

			pod.RestartCount += int(status.RestartCount)
		}

		if len(item.Metadata.OwnerReferences) > 0 {
			pod.OwnerKind = item.Metadata.OwnerReferences[0].Kind
			pod.OwnerName = item.Metadata.OwnerReferences[0].Name
		}

		out = append(out, pod)
	}

	return out, nil
}

func (t *httpTransport) ScaleWorkload(
	ctx context.Context,
	kind snapshot.Kind,
	namespace,
	name string,
	replicas int32,
) error {
	resource, err := workloadResource(kind)
	if err != nil {
		return err
	}

	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas)
	path := namespacedPath(appsV1Prefix, namespace, resource, name) + "/scale"

	return t.do(ctx, http.MethodPatch, path, strategicMergePatchContentType, []byte(patch), nil)
}

func (t *httpTransport) SetCronJobSuspend(
	ctx context.Context,
	namespace,
	name string,
	suspend bool,
) error {
	patch := fmt.Sprintf(`{"spec":{"suspend":%t}}`, suspend)
	path := namespacedPath(batchV1Prefix, namespace, "cronjobs", name)

	return t.do(ctx, http.MethodPatch, path, strategicMergePatchContentType, []byte(patch), nil)
}

func (t *httpTransport) TriggerCronJob(
	ctx context.Context,
	namespace,
	name,
	jobName string,
) (string, error) {
	var cronJob wireCronJob

	getPath := namespacedPath(batchV1Prefix, namespace, "cronjobs", name)
	if err := t.do(ctx, http.MethodGet, getPath, "", nil, &cronJob); err != nil {
		return "", err
	}

	if len(cronJob.Spec.JobTemplate) == 0 {
		return "", fmt.Errorf("cronjob %s/%s has no job template", namespace, name)
	}

	var template struct {
		Metadata struct {
			Labels map[string]string `json:"labels"`
		} `json:"metadata"`
		Spec json.RawMessage `json:"spec"`
	}

	if err := json.Unmarshal(cronJob.Spec.JobTemplate, &template); err != nil {
		return "", fmt.Errorf("decode job template: %w", err)
	}

	labels := make(map[string]string, len(template.Metadata.Labels)+2)
	for k, v := range template.Metadata.Labels {
		labels[k] = v
	}

	labels[manualJobLabel] = "true"
	labels[cronJobNameLabel] = name

	if len(template.Spec) == 0 {
		return "", fmt.Errorf("cronjob %s/%s job template has no spec", namespace, name)
	}

	job := map[string]any{
		"apiVersion": "batch/v1",
		"kind":       "Job",
		"metadata": map[string]any{
			"name":      jobName,
			"namespace": namespace,
			"labels":    labels,
		},
		"spec": template.Spec,
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	var created struct {
		Metadata wireMeta `json:"metadata"`
	}

	createPath := batchV1Prefix + "/namespaces/" + namespace + "/jobs"
	if err := t.do(ctx, http.MethodPost, createPath, jsonContentType, body, &created); err != nil {
		return "", err
	}

	return created.Metadata.UID, nil
}

func workloadResource(kind snapshot.Kind) (string, error) {
	switch kind {
	case snapshot.KindDeployment:
		return "deployments", nil
	case snapshot.KindStatefulSet:
		return "statefulsets", nil
	default:
		return "", fmt.Errorf("kind %s is not scalable", kind)
	}
}
