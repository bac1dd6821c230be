package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kubebridge/kubebridge/internal/logic/control"
	"github.com/kubebridge/kubebridge/internal/logic/snapshot"
)

type workloadResponse struct {
	Kind              string    `json:"kind"`
	Name              string    `json:"name"`
	Namespace         string    `json:"namespace"`
	UID               string    `json:"uid,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
	Replicas          int32     `json:"replicas"`
	AvailableReplicas int32     `json:"availableReplicas"`
	ReadyReplicas     int32     `json:"readyReplicas"`
	Running           bool      `json:"running"`
}

type cronJobResponse struct {
	Name                       string     `json:"name"`
	Namespace                  string     `json:"namespace"`
	UID                        string     `json:"uid,omitempty"`
	CreatedAt                  time.Time  `json:"createdAt,omitzero"`
	Schedule                   string     `json:"schedule"`
	TimeZone                   string     `json:"timeZone,omitempty"`
	Suspend                    bool       `json:"suspend"`
	ActiveJobs                 int        `json:"activeJobs"`
	LastScheduleTime           *time.Time `json:"lastScheduleTime,omitempty"`
	NextScheduleTime           *time.Time `json:"nextScheduleTime,omitempty"`
	SuccessfulJobsHistoryLimit int32      `json:"successfulJobsHistoryLimit"`
	FailedJobsHistoryLimit     int32      `json:"failedJobsHistoryLimit"`
	ConcurrencyPolicy          string     `json:"concurrencyPolicy"`
}

type nodeResponse struct {
	Name                 string    `json:"name"`
	UID                  string    `json:"uid,omitempty"`
	CreatedAt            time.Time `json:"createdAt,omitzero"`
	Ready                bool      `json:"ready"`
	Schedulable          bool      `json:"schedulable"`
	InternalIP           string    `json:"internalIP,omitempty"`
	ExternalIP           string    `json:"externalIP,omitempty"`
	CPUCores             float64   `json:"cpuCores"`
	MemoryCapacityGiB    float64   `json:"memoryCapacityGiB"`
	MemoryAllocatableGiB float64   `json:"memoryAllocatableGiB"`
	OSImage              string    `json:"osImage,omitempty"`
	KernelVersion        string    `json:"kernelVersion,omitempty"`
	ContainerRuntime     string    `json:"containerRuntime,omitempty"`
	KubeletVersion       string    `json:"kubeletVersion,omitempty"`
}

type podResponse struct {
	Name            string    `json:"name"`
	Namespace       string    `json:"namespace"`
	UID             string    `json:"uid,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	Phase           string    `json:"phase"`
	ReadyContainers int       `json:"readyContainers"`
	TotalContainers int       `json:"totalContainers"`
	RestartCount    int       `json:"restartCount"`
	NodeName        string    `json:"nodeName,omitempty"`
	PodIP           string    `json:"podIP,omitempty"`
	OwnerKind       string    `json:"ownerKind,omitempty"`
	OwnerName       string    `json:"ownerName,omitempty"`
}

type snapshotResponse struct {
	Deployments  []workloadResponse `json:"deployments"`
	StatefulSets []workloadResponse `json:"statefulsets"`
	CronJobs     []cronJobResponse  `json:"cronjobs"`
	Nodes        []nodeResponse     `json:"nodes"`
	PodsCount    int                `json:"podsCount"`
	RefreshedAt  time.Time          `json:"refreshedAt"`
}

type stateResponse struct {
	Kind           string    `json:"kind"`
	Namespace      string    `json:"namespace"`
	Name           string    `json:"name"`
	Phase          string    `json:"phase"`
	Replicas       int32     `json:"replicas"`
	Running        bool      `json:"running"`
	Suspended      bool      `json:"suspended"`
	LastFailed     bool      `json:"lastFailed"`
	LastMutationAt time.Time `json:"lastMutationAt,omitzero"`
	CooldownUntil  time.Time `json:"cooldownUntil,omitzero"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Components  map[string]string `json:"components"`
	LastRefresh time.Time         `json:"lastRefresh,omitzero"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, control.ErrUnknownTarget):
		status = http.StatusNotFound
	case errors.Is(err, control.ErrCooldownActive):
		status = http.StatusConflict
	case errors.Is(err, control.ErrNamespaceForbidden):
		status = http.StatusForbidden
	case errors.Is(err, control.ErrInvalidReplicas):
		status = http.StatusBadRequest
	case errors.Is(err, control.ErrMutationFailed):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, p := range s.pingers {
		if err := p.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.pingers))

	for _, p := range s.pingers {
		if err := p.Ping(r.Context()); err != nil {
			components[p.Name()] = err.Error()

			continue
		}

		components[p.Name()] = "ok"
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		Components:  components,
		LastRefresh: s.snapshots.LastRefreshTime(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no snapshot published yet"})

		return
	}

	resp := snapshotResponse{
		Deployments:  toWorkloadResponses(snap.Deployments),
		StatefulSets: toWorkloadResponses(snap.StatefulSets),
		CronJobs:     toCronJobResponses(snap.CronJobs),
		Nodes:        toNodeResponses(snap.Nodes),
		PodsCount:    snap.PodsCount,
		RefreshedAt:  snap.RefreshedAt,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	snap, err := s.snapshots.RefreshCommand(ctx)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"refreshedAt": snap.RefreshedAt})
}

func (s *Server) handleListDeployments(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusOK, []workloadResponse{})

		return
	}

	s.writeJSON(w, http.StatusOK, toWorkloadResponses(snap.Deployments))
}

func (s *Server) handleListStatefulSets(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusOK, []workloadResponse{})

		return
	}

	s.writeJSON(w, http.StatusOK, toWorkloadResponses(snap.StatefulSets))
}

func (s *Server) handleListCronJobs(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusOK, []cronJobResponse{})

		return
	}

	s.writeJSON(w, http.StatusOK, toCronJobResponses(snap.CronJobs))
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusOK, []nodeResponse{})

		return
	}

	s.writeJSON(w, http.StatusOK, toNodeResponses(snap.Nodes))
}

func (s *Server) handleListPods(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		s.writeJSON(w, http.StatusOK, []podResponse{})

		return
	}

	pods := make([]podResponse, 0, len(snap.Pods))
	for i := range snap.Pods {
		p := &snap.Pods[i]
		pods = append(pods, podResponse{
			Name:            p.Name,
			Namespace:       p.Namespace,
			UID:             p.UID,
			CreatedAt:       p.CreatedAt,
			Phase:           p.Phase,
			ReadyContainers: p.ReadyContainers,
			TotalContainers: p.TotalContainers,
			RestartCount:    p.RestartCount,
			NodeName:        p.NodeName,
			PodIP:           p.PodIP,
			OwnerKind:       p.OwnerKind,
			OwnerName:       p.OwnerName,
		})
	}

	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })

	s.writeJSON(w, http.StatusOK, pods)
}

func (s *Server) writeCount(w http.ResponseWriter, count int) {
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleDeploymentsCount(w http.ResponseWriter, r *http.Request) {
	s.writeCount(w, s.counter.CountDeploymentsQuery(r.Context()))
}

func (s *Server) handleStatefulSetsCount(w http.ResponseWriter, r *http.Request) {
	s.writeCount(w, s.counter.CountStatefulSetsQuery(r.Context()))
}

func (s *Server) handleCronJobsCount(w http.ResponseWriter, r *http.Request) {
	s.writeCount(w, s.counter.CountCronJobsQuery(r.Context()))
}

func (s *Server) handleNodesCount(w http.ResponseWriter, r *http.Request) {
	s.writeCount(w, s.counter.CountNodesQuery(r.Context()))
}

func (s *Server) handlePodsCount(w http.ResponseWriter, r *http.Request) {
	s.writeCount(w, s.counter.CountPodsQuery(r.Context()))
}

func pathKind(r *http.Request) (snapshot.Kind, bool) {
	switch chi.URLParam(r, "kind") {
	case "deployments":
		return snapshot.KindDeployment, true
	case "statefulsets":
		return snapshot.KindStatefulSet, true
	default:
		return "", false
	}
}

func (s *Server) handleWorkloadState(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	s.writeState(w, kind, chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
}

func (s *Server) handleCronJobState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, snapshot.KindCronJob, chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
}

func (s *Server) writeState(w http.ResponseWriter, kind snapshot.Kind, namespace, name string) {
	st, ok := s.controls.State(kind, namespace, name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "resource not tracked"})

		return
	}

	s.writeJSON(w, http.StatusOK, stateResponse{
		Kind:           string(st.Target.Kind),
		Namespace:      st.Target.Namespace,
		Name:           st.Target.Name,
		Phase:          string(st.Phase),
		Replicas:       st.Replicas,
		Running:        st.Running,
		Suspended:      st.Suspended,
		LastFailed:     st.LastFailed,
		LastMutationAt: st.LastMutationAt,
		CooldownUntil:  st.CooldownUntil,
	})
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	var body struct {
		Replicas int32 `json:"replicas"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})

		return
	}

	err := s.controls.ScaleCommand(
		r.Context(), kind, chi.URLParam(r, "namespace"), chi.URLParam(r, "name"), body.Replicas,
	)
	if err != nil {
		s.writeControlError(w, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStartWorkload(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	err := s.controls.StartWorkloadCommand(
		r.Context(), kind, chi.URLParam(r, "namespace"), chi.URLParam(r, "name"),
	)
	if err != nil {
		s.writeControlError(w, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStopWorkload(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	err := s.controls.StopWorkloadCommand(
		r.Context(), kind, chi.URLParam(r, "namespace"), chi.URLParam(r, "name"),
	)
	if err != nil {
		s.writeControlError(w, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSuspendCronJob(w http.ResponseWriter, r *http.Request) {
	err := s.controls.SuspendCronJobCommand(
		r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "name"),
	)
	if err != nil {
		s.writeControlError(w, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResumeCronJob(w http.ResponseWriter, r *http.Request) {
	err := s.controls.ResumeCronJobCommand(
		r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "name"),
	)
	if err != nil {
		s.writeControlError(w, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTriggerCronJob(w http.ResponseWriter, r *http.Request) {
	res, err := s.controls.TriggerCronJobCommand(
		r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "name"),
	)
	if err != nil {
		s.writeControlError(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{
		"jobName": res.JobName,
		"jobUID":  res.JobUID,
	})
}

func toWorkloadResponses(in map[string]snapshot.Workload) []workloadResponse {
	out := make([]workloadResponse, 0, len(in))

	for _, w := range in {
		out = append(out, workloadResponse{
			Kind:              string(w.Kind),
			Name:              w.Name,
			Namespace:         w.Namespace,
			UID:               w.UID,
			CreatedAt:         w.CreatedAt,
			Replicas:          w.Replicas,
			AvailableReplicas: w.AvailableReplicas,
			ReadyReplicas:     w.ReadyReplicas,
			Running:           w.Running,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func toCronJobResponses(in map[string]snapshot.CronJob) []cronJobResponse {
	out := make([]cronJobResponse, 0, len(in))

	for _, cj := range in {
		out = append(out, cronJobResponse{
			Name:                       cj.Name,
			Namespace:                  cj.Namespace,
			UID:                        cj.UID,
			CreatedAt:                  cj.CreatedAt,
			Schedule:                   cj.Schedule,
			TimeZone:                   cj.TimeZone,
			Suspend:                    cj.Suspend,
			ActiveJobs:                 cj.ActiveJobs,
			LastScheduleTime:           cj.LastScheduleTime,
			NextScheduleTime:           cj.NextScheduleTime,
			SuccessfulJobsHistoryLimit: cj.SuccessfulJobsHistoryLimit,
			FailedJobsHistoryLimit:     cj.FailedJobsHistoryLimit,
			ConcurrencyPolicy:          cj.ConcurrencyPolicy,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func toNodeResponses(in map[string]snapshot.Node) []nodeResponse {
	out := make([]nodeResponse, 0, len(in))

	for _, n := range in {
		out = append(out, nodeResponse{
			Name:                 n.Name,
			UID:                  n.UID,
			CreatedAt:            n.CreatedAt,
			Ready:                n.Ready,
			Schedulable:          n.Schedulable,
			InternalIP:           n.InternalIP,
			ExternalIP:           n.ExternalIP,
			CPUCores:             n.CPUCores,
			MemoryCapacityGiB:    n.MemoryCapacityGiB,
			MemoryAllocatableGiB: n.MemoryAllocatableGiB,
			OSImage:              n.OSImage,
			KernelVersion:        n.KernelVersion,
			ContainerRuntime:     n.ContainerRuntime,
			KubeletVersion:       n.KubeletVersion,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
