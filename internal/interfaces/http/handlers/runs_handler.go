package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/molforge/graphchem/internal/application/experiment"
	"github.com/molforge/graphchem/internal/config"
	"github.com/molforge/graphchem/internal/infrastructure/database/postgres"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

// RunService is the experiment surface the runs endpoints need.
// *experiment.Service satisfies it.
type RunService interface {
	StartRun(ctx context.Context, in experiment.StartRunInput) (*experiment.RunOutcome, error)
	GetRun(ctx context.Context, id string) (*postgres.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*postgres.Run, error)
}

// RunsHandler manages training runs over HTTP.
type RunsHandler struct {
	svc      RunService
	defaults config.Config
	logger   logging.Logger
}

// NewRunsHandler builds the handler.  defaults supplies dataset, model,
// and training settings that request bodies may override.
func NewRunsHandler(svc RunService, defaults config.Config, logger logging.Logger) *RunsHandler {
	return &RunsHandler{svc: svc, defaults: defaults, logger: logger}
}

// StartRunRequest is the body of POST /api/v1/runs.
type StartRunRequest struct {
	DatasetName string `json:"dataset_name" binding:"required"`
	DatasetPath string `json:"dataset_path" binding:"required"`
	Epochs      int    `json:"epochs"`
	BatchSize   int    `json:"batch_size"`
	Seed        int64  `json:"seed"`
}

// StartRunResponse is returned with 202 Accepted; the run proceeds in the
// background and its record tracks progress.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Start launches a training run asynchronously.
func (h *RunsHandler) Start(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid run request"))
		return
	}

	in := experiment.StartRunInput{
		RunID:       uuid.NewString(),
		DatasetName: req.DatasetName,
		Dataset:     h.defaults.Dataset,
		Model:       h.defaults.Model,
		Training:    h.defaults.Training,
	}
	in.Dataset.Path = req.DatasetPath
	if req.Epochs > 0 {
		in.Training.Epochs = req.Epochs
	}
	if req.BatchSize > 0 {
		in.Training.BatchSize = req.BatchSize
	}
	if req.Seed != 0 {
		in.Training.Seed = req.Seed
		in.Model.Seed = req.Seed
	}

	// The request context dies with the response; the run must not.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
		defer cancel()
		if _, err := h.svc.StartRun(ctx, in); err != nil {
			h.logger.Error("background run failed",
				logging.String("run_id", in.RunID), logging.Err(err))
		}
	}()

	c.JSON(http.StatusAccepted, StartRunResponse{RunID: in.RunID, Status: "accepted"})
}

// RunRecord is the JSON shape of a persisted run.
type RunRecord struct {
	ID            string     `json:"id"`
	Dataset       string     `json:"dataset"`
	Status        string     `json:"status"`
	Tasks         []string   `json:"tasks"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	BestEpoch     int        `json:"best_epoch"`
	MeanAUC       float64    `json:"mean_auc"`
	CheckpointKey string     `json:"checkpoint_key,omitempty"`
	Error         string     `json:"error,omitempty"`
}

func toRunRecord(run *postgres.Run) RunRecord {
	return RunRecord{
		ID:            run.ID,
		Dataset:       run.Dataset,
		Status:        string(run.Status),
		Tasks:         run.Tasks,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		BestEpoch:     run.BestEpoch,
		MeanAUC:       run.MeanAUC,
		CheckpointKey: run.CheckpointKey,
		Error:         run.Error,
	}
}

// Get returns one run by id.
func (h *RunsHandler) Get(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("runID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRunRecord(run))
}

// List returns recent runs, newest first.
func (h *RunsHandler) List(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	runs, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	records := make([]RunRecord, 0, len(runs))
	for _, run := range runs {
		records = append(records, toRunRecord(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}
