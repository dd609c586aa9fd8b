// Package devserver is a self-contained stand-in for the ExRay
// backend. It serves the same HTTP contract with canned runs that
// advance through their lifecycle over time, so the TUI and scripts
// can be exercised without a cluster.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ameen-91/exray/internal/models"
)

// runAdvanceAfter is how long a seeded or submitted run stays in each
// non-terminal phase before advancing.
const runAdvanceAfter = 15 * time.Second

type trackedRun struct {
	run models.Run
	// phaseSince is when the run entered its current phase; advance
	// steps the lifecycle once per elapsed interval.
	phaseSince time.Time
	// willFail makes the run end in Failed instead of Succeeded.
	willFail bool
}

// Server holds the in-memory run set.
type Server struct {
	mu   sync.Mutex
	runs map[string]*trackedRun
	log  *slog.Logger
}

// New creates a server pre-seeded with a few runs in different phases.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runs: make(map[string]*trackedRun),
		log:  logger,
	}
	s.seed()
	return s
}

func (s *Server) seed() {
	now := time.Now()
	seeds := []struct {
		workflow models.WorkflowKind
		phase    string
		file     string
		age      time.Duration
		willFail bool
	}{
		{models.WorkflowCTGAN, models.PhaseSucceeded, "census.csv", 2 * time.Hour, false},
		{models.WorkflowLLM, models.PhaseRunning, "tickets.csv", 3 * time.Minute, false},
		{models.WorkflowCustom, models.PhaseFailed, "events.csv", time.Hour, true},
		{models.WorkflowCTGAN, models.PhasePending, "orders.csv", 10 * time.Second, false},
	}

	for _, seed := range seeds {
		id := uuid.NewString()
		created := now.Add(-seed.age)
		s.runs[id] = &trackedRun{
			phaseSince: now,
			willFail:   seed.willFail,
			run: models.Run{
				RunID:            id,
				Workflow:         seed.workflow,
				ArgoName:         fmt.Sprintf("%s-%s", seed.workflow, id[:8]),
				Namespace:        "argo",
				Status:           models.RunStatus{Phase: seed.phase},
				OriginalFilename: seed.file,
				InputFileName:    id + "_" + seed.file,
				InputObject:      "input/" + id + "_" + seed.file,
				ResultObject:     "output/" + id + "_" + seed.file,
				CreatedAt:        created.UTC().Format(time.RFC3339),
				UpdatedAt:        created.UTC().Format(time.RFC3339),
			},
		}
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/runs", s.handleListRuns)
	r.Post("/runs/ctgan", s.handleSubmit(models.WorkflowCTGAN, "file"))
	r.Post("/runs/llm", s.handleSubmit(models.WorkflowLLM, "file"))
	r.Post("/runs/custom", s.handleSubmit(models.WorkflowCustom, "data_file"))
	r.Get("/runs/{runID}", s.handleGetRun)
	r.Get("/runs/{runID}/result", s.handleResult)
	r.Get("/runs/{runID}/logs", s.handleLogs)

	return r
}

// advance steps a run's phase once per interval spent in it.
// Callers hold s.mu.
func (s *Server) advance(tr *trackedRun) {
	changed := false
	for !tr.run.Terminal() && time.Since(tr.phaseSince) >= runAdvanceAfter {
		switch tr.run.Status.Phase {
		case models.PhasePending:
			tr.run.Status.Phase = models.PhaseSubmitted
		case models.PhaseSubmitted:
			tr.run.Status.Phase = models.PhaseRunning
			tr.run.Status.StartedAt = time.Now().UTC().Format(time.RFC3339)
		case models.PhaseRunning:
			if tr.willFail {
				tr.run.Status.Phase = models.PhaseFailed
			} else {
				tr.run.Status.Phase = models.PhaseSucceeded
			}
			tr.run.Status.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		default:
			return
		}
		tr.phaseSince = tr.phaseSince.Add(runAdvanceAfter)
		changed = true
	}
	if changed {
		tr.run.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	runs := make([]models.Run, 0, len(s.runs))
	for _, tr := range s.runs {
		s.advance(tr)
		runs = append(runs, tr.run)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	s.mu.Lock()
	tr, ok := s.runs[runID]
	if ok {
		s.advance(tr)
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, tr.run)
}

func (s *Server) handleSubmit(kind models.WorkflowKind, fileField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		_, header, err := r.FormFile(fileField)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("missing %s", fileField))
			return
		}

		id := uuid.NewString()
		now := time.Now()
		filename := header.Filename
		if filename == "" {
			filename = "dataset.csv"
		}

		params := make(map[string]any)
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		tr := &trackedRun{
			phaseSince: now,
			run: models.Run{
				RunID:            id,
				Workflow:         kind,
				Parameters:       params,
				ArgoName:         fmt.Sprintf("%s-%s", kind, id[:8]),
				Namespace:        "argo",
				SubmittedAt:      now.UTC().Format(time.RFC3339),
				Status:           models.RunStatus{Phase: models.PhasePending},
				OriginalFilename: filename,
				InputFileName:    id + "_" + filename,
				InputObject:      "input/" + id + "_" + filename,
				ResultObject:     "output/" + id + "_" + filename,
				CreatedAt:        now.UTC().Format(time.RFC3339),
				UpdatedAt:        now.UTC().Format(time.RFC3339),
			},
		}

		s.mu.Lock()
		s.runs[id] = tr
		s.mu.Unlock()

		s.log.Info("accepted run", "run_id", id, "workflow", string(kind), "file", filename)
		writeJSON(w, http.StatusOK, tr.run)
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	s.mu.Lock()
	tr, ok := s.runs[runID]
	if ok {
		s.advance(tr)
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Run not found")
		return
	}
	if models.ClassifyPhase(tr.run.Status.Phase) != models.PhaseCategorySuccess {
		writeDetail(w, http.StatusConflict, "Run is not complete yet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"run_id":       runID,
		"download_url": "http://localhost:9000/inputs/" + tr.run.ResultObject + "?signed=dev",
	})
}

// handleLogs emits structured JSON lines while a run is in flight and
// the delimited-block form once it is terminal, mirroring the two
// encodings the real backend produces.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	s.mu.Lock()
	tr, ok := s.runs[runID]
	if ok {
		s.advance(tr)
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Run not found")
		return
	}

	run := tr.run
	pod := run.ArgoName + "-main-1234567890"
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if run.Terminal() {
		var b strings.Builder
		fmt.Fprintf(&b, "=== %s [%s] (phase: %s) ===\n", run.ArgoName+"-main", pod, run.Status.Phase)
		fmt.Fprintf(&b, "processing %s\n", run.InputFileName)
		if run.Status.Phase == models.PhaseFailed {
			b.WriteString("step 3 exited with code 1\n")
		} else {
			fmt.Fprintf(&b, "wrote %s\n", run.ResultObject)
		}
		w.Write([]byte(b.String()))
		return
	}

	lines := []string{
		fmt.Sprintf("starting %s workflow", run.Workflow),
		fmt.Sprintf("reading %s", run.InputFileName),
		"working...",
	}
	enc := json.NewEncoder(w)
	for _, line := range lines {
		enc.Encode(map[string]any{"result": map[string]string{
			"content": line,
			"podName": pod,
		}})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthReport{
		OverallStatus: "healthy",
		Services: map[string]models.ServiceHealth{
			"argo":  {Status: "connected", Message: "dev server stub"},
			"minio": {Status: "connected", Message: "dev server stub"},
		},
		Cluster: &models.ClusterInfo{
			Nodes:               1,
			TotalCPU:            8,
			TotalMemoryGB:       16,
			AllocatableCPU:      7.5,
			AllocatableMemoryGB: 14,
			NodeDetails: []models.NodeInfo{{
				Name:                "dev-node",
				Ready:               true,
				CPUCapacity:         8,
				CPUAllocatable:      7.5,
				MemoryCapacityGB:    16,
				MemoryAllocatableGB: 14,
				KubeletVersion:      "v1.30.0",
			}},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
