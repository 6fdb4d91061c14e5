package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

// CreateNodeRequest is the provision request body.
type CreateNodeRequest struct {
	CPUCores    int   `json:"cpu_cores"`
	MemoryBytes int64 `json:"memory_bytes"`
}

// CreateWorkloadRequest is the submit request body.
type CreateWorkloadRequest struct {
	Name        string `json:"name"`
	CPUCores    int    `json:"cpu_cores"`
	MemoryBytes int64  `json:"memory_bytes"`
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeValidationError(w, "malformed request body")
		return
	}
	if req.CPUCores <= 0 || req.MemoryBytes <= 0 {
		s.writeValidationError(w, "node capacity must be positive")
		return
	}

	node, err := s.manager.Provision(r.Context(), types.Resources{
		CPUCores:    req.CPUCores,
		MemoryBytes: req.MemoryBytes,
	})
	if err != nil {
		// Provisioning failures leave a Failed node record behind; return
		// it so the caller can inspect the surfaced error.
		if node != nil {
			writeJSON(w, http.StatusBadGateway, node)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	nodeList, err := s.store.ListNodes()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeList)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.store.GetNode(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rev, err := expectedRevision(r)
	if err != nil {
		s.writeValidationError(w, err.Error())
		return
	}
	if rev != 0 {
		node, err := s.store.GetNode(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if node.Revision != rev {
			s.writeError(w, fmt.Errorf("node %s: expected revision %d, have %d: %w",
				id, rev, node.Revision, store.ErrConflict))
			return
		}
	}

	if err := s.manager.Terminate(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Heartbeat(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createWorkload(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeValidationError(w, "malformed request body")
		return
	}
	if req.Name == "" {
		s.writeValidationError(w, "workload name is required")
		return
	}
	if req.CPUCores <= 0 || req.MemoryBytes <= 0 {
		s.writeValidationError(w, "workload resource request must be positive")
		return
	}

	workload := &types.Workload{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Request:   types.Resources{CPUCores: req.CPUCores, MemoryBytes: req.MemoryBytes},
		Phase:     types.WorkloadPending,
		CreatedAt: time.Now(),
	}
	if _, err := s.store.CreateWorkload(workload); err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(&events.Event{Type: events.EventWorkloadCreated, WorkloadID: workload.ID})
	s.sched.Kick()
	writeJSON(w, http.StatusCreated, workload)
}

func (s *Server) listWorkloads(w http.ResponseWriter, r *http.Request) {
	workloads, err := s.store.ListWorkloads()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workloads)
}

func (s *Server) getWorkload(w http.ResponseWriter, r *http.Request) {
	workload, err := s.store.GetWorkload(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (s *Server) deleteWorkload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rev, err := expectedRevision(r)
	if err != nil {
		s.writeValidationError(w, err.Error())
		return
	}

	// Terminate first so the placement is released as a recorded phase
	// transition, then drop the record.
	if _, err := store.MutateWorkload(s.store, id, func(cur *types.Workload) (bool, error) {
		if rev != 0 && cur.Revision != rev {
			return false, fmt.Errorf("workload %s: expected revision %d, have %d: %w",
				id, rev, cur.Revision, store.ErrConflict)
		}
		if cur.Phase == types.WorkloadTerminated {
			return false, nil
		}
		cur.Phase = types.WorkloadTerminated
		cur.NodeID = ""
		cur.FinishedAt = time.Now()
		return true, nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.DeleteWorkload(id, 0); err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(&events.Event{Type: events.EventWorkloadDeleted, WorkloadID: id})
	s.sched.Kick()
	w.WriteHeader(http.StatusNoContent)
}

// resubmitWorkload clones a Failed workload into a fresh Pending object.
// Failed is terminal; recovery is this explicit caller action, never an
// automatic requeue.
func (s *Server) resubmitWorkload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	failed, err := s.store.GetWorkload(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if failed.Phase != types.WorkloadFailed {
		s.writeValidationError(w, fmt.Sprintf("workload %s is %s, only failed workloads can be resubmitted", id, failed.Phase))
		return
	}

	fresh := &types.Workload{
		ID:        uuid.New().String(),
		Name:      failed.Name,
		Request:   failed.Request,
		Phase:     types.WorkloadPending,
		CreatedAt: time.Now(),
	}
	if _, err := s.store.CreateWorkload(fresh); err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(&events.Event{
		Type:       events.EventWorkloadCreated,
		WorkloadID: fresh.ID,
		Metadata:   map[string]string{"resubmitted_from": id},
	})
	s.sched.Kick()
	writeJSON(w, http.StatusCreated, fresh)
}

// clusterStatus returns every node with its free capacity and every
// workload with its phase and assignment.
func (s *Server) clusterStatus(w http.ResponseWriter, r *http.Request) {
	nodeList, err := s.store.ListNodes()
	if err != nil {
		s.writeError(w, err)
		return
	}
	workloads, err := s.store.ListWorkloads()
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := &types.ClusterStatus{Workloads: workloads}
	for _, n := range nodeList {
		free := n.Capacity
		for _, wl := range workloads {
			if wl.Placed() && wl.NodeID == n.ID {
				free = free.Sub(wl.Request)
			}
		}
		status.Nodes = append(status.Nodes, &types.NodeStatus{Node: n, Free: free})
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) publish(event *events.Event) {
	if s.broker != nil {
		s.broker.Publish(event)
	}
}
