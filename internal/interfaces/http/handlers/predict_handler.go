package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/internal/gnn/model"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
	"github.com/molforge/graphchem/internal/infrastructure/search/milvus"
	"github.com/molforge/graphchem/pkg/errors"
)

// PropertyModel is the model surface the predict endpoints need.
// *model.GraphConvModel satisfies it.
type PropertyModel interface {
	Predict(b *graph.BatchGraph) (*mat.Dense, error)
	Embed(b *graph.BatchGraph) (*mat.Dense, error)
	Config() model.Config
}

// EmbeddingSearcher finds molecules with similar embeddings.
// *milvus.EmbeddingIndex satisfies it.
type EmbeddingSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]milvus.Hit, error)
}

// PredictHandler serves property predictions and similarity search from a
// loaded model.
type PredictHandler struct {
	model    PropertyModel
	tasks    []string
	searcher EmbeddingSearcher
	metrics  *metrics.Metrics
	logger   logging.Logger
}

// NewPredictHandler builds the handler.  model may be nil when no
// checkpoint is configured; requests then fail with 503.  searcher may be
// nil when no vector index is configured.
func NewPredictHandler(m PropertyModel, tasks []string, searcher EmbeddingSearcher, mets *metrics.Metrics, logger logging.Logger) *PredictHandler {
	return &PredictHandler{model: m, tasks: tasks, searcher: searcher, metrics: mets, logger: logger}
}

// PredictRequest is the body of POST /api/v1/predict.
type PredictRequest struct {
	SMILES []string `json:"smiles" binding:"required,min=1,max=256"`
}

// MoleculePrediction holds per-task probabilities for one molecule.
type MoleculePrediction struct {
	SMILES        string             `json:"smiles"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// PredictResponse is the body returned by POST /api/v1/predict.
type PredictResponse struct {
	Predictions []MoleculePrediction `json:"predictions"`
}

// Predict scores a batch of SMILES strings.
func (h *PredictHandler) Predict(c *gin.Context) {
	start := time.Now()
	status := "ok"
	defer func() {
		if h.metrics != nil {
			h.metrics.PredictRequestsTotal.WithLabelValues(status).Inc()
			h.metrics.PredictDuration.Observe(time.Since(start).Seconds())
		}
	}()

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status = "bad_request"
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid predict request"))
		return
	}
	if h.model == nil {
		status = "unavailable"
		respondError(c, errors.New(errors.ErrCodeModelNotLoaded, "no model checkpoint is loaded"))
		return
	}

	batch, err := h.batchFromSMILES(req.SMILES)
	if err != nil {
		status = "bad_request"
		respondError(c, err)
		return
	}

	probs, err := h.model.Predict(batch)
	if err != nil {
		status = "error"
		respondError(c, errors.Wrap(err, errors.ErrCodePredictFailed, "prediction failed"))
		return
	}

	resp := PredictResponse{}
	for i, s := range req.SMILES {
		p := MoleculePrediction{SMILES: s, Probabilities: map[string]float64{}}
		for t, name := range h.taskNames() {
			p.Probabilities[name] = probs.At(i, t)
		}
		resp.Predictions = append(resp.Predictions, p)
	}
	c.JSON(http.StatusOK, resp)
}

// SimilarRequest is the body of POST /api/v1/similar.
type SimilarRequest struct {
	SMILES string `json:"smiles" binding:"required"`
	TopK   int    `json:"top_k"`
}

// SimilarResponse is the body returned by POST /api/v1/similar.
type SimilarResponse struct {
	Query string       `json:"query"`
	Hits  []milvus.Hit `json:"hits"`
}

// Similar embeds the query molecule and searches the vector index.
func (h *PredictHandler) Similar(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid similarity request"))
		return
	}
	if h.model == nil {
		respondError(c, errors.New(errors.ErrCodeModelNotLoaded, "no model checkpoint is loaded"))
		return
	}
	if h.searcher == nil {
		respondError(c, errors.New(errors.ErrCodeNotImplemented, "no embedding index is configured"))
		return
	}

	batch, err := h.batchFromSMILES([]string{req.SMILES})
	if err != nil {
		respondError(c, err)
		return
	}
	emb, err := h.model.Embed(batch)
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding failed"))
		return
	}

	row := emb.RawRowView(0)
	vec := make([]float32, len(row))
	for i, v := range row {
		vec[i] = float32(v)
	}

	hits, err := h.searcher.Search(c.Request.Context(), vec, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SimilarResponse{Query: req.SMILES, Hits: hits})
}

func (h *PredictHandler) batchFromSMILES(smiles []string) (*graph.BatchGraph, error) {
	maxDegree := h.model.Config().MaxDegree
	featurizer := molecule.NewFeaturizer(maxDegree)

	mols := make([]*graph.MolGraph, 0, len(smiles))
	for _, s := range smiles {
		g, err := featurizer.Featurize(s)
		if err != nil {
			return nil, err
		}
		mols = append(mols, g)
	}
	return graph.NewBatchGraph(mols, maxDegree)
}

func (h *PredictHandler) taskNames() []string {
	if len(h.tasks) == h.model.Config().NumTasks {
		return h.tasks
	}
	names := make([]string, h.model.Config().NumTasks)
	for i := range names {
		names[i] = fmt.Sprintf("task_%d", i)
	}
	return names
}
