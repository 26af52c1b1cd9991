// Package server implements the HTTP API: dataset import and management
// plus the analysis query endpoints.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aaqwq/groupscope/internal/analysis"
	"github.com/aaqwq/groupscope/internal/analysis/cache"
	"github.com/aaqwq/groupscope/internal/dataset"
	"github.com/aaqwq/groupscope/internal/decrypt"
	"github.com/aaqwq/groupscope/internal/ingest"
	"github.com/aaqwq/groupscope/internal/membership"
	"github.com/aaqwq/groupscope/internal/stats"
	"github.com/aaqwq/groupscope/pkg/config"
	apperrors "github.com/aaqwq/groupscope/pkg/errors"
	"github.com/aaqwq/groupscope/pkg/logger"
	"github.com/aaqwq/groupscope/pkg/metrics"
)

// Handler implements the service's HTTP endpoints.
type Handler struct {
	store      *dataset.Store
	pairCache  *cache.PairCache
	pipeline   *decrypt.Pipeline
	aggregator *stats.Aggregator
	metrics    *metrics.Metrics
	cfg        config.AnalysisConfig
	ingestCfg  config.IngestConfig
	logger     *slog.Logger
}

// New creates a Handler. pairCache may be nil when Redis is unavailable;
// metrics may be nil in tests.
func New(
	store *dataset.Store,
	pairCache *cache.PairCache,
	pipeline *decrypt.Pipeline,
	aggregator *stats.Aggregator,
	m *metrics.Metrics,
	cfg config.AnalysisConfig,
	ingestCfg config.IngestConfig,
) *Handler {
	return &Handler{
		store:      store,
		pairCache:  pairCache,
		pipeline:   pipeline,
		aggregator: aggregator,
		metrics:    m,
		cfg:        cfg,
		ingestCfg:  ingestCfg,
		logger:     slog.Default().With("component", "http-handler"),
	}
}

// ---------- Dataset management ----------

// ListDatasets returns a summary of every loaded dataset.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.List())
}

type importDBRequest struct {
	// Path points at an already-decrypted database anywhere on disk. When
	// empty, the decrypt pipeline runs inside the owner's data directory
	// starting from Step.
	Path string `json:"path"`
	Step string `json:"step"`
	UID  string `json:"uid"`
	Key  string `json:"key"`
	// FromDevice copies the encrypted database out of the chat client's
	// data directory first, then runs the full pipeline.
	FromDevice bool `json:"from_device"`
	Cleanup    bool `json:"cleanup"`
}

type importResponse struct {
	Owner   string `json:"owner"`
	Groups  int    `json:"groups"`
	Members int    `json:"members"`
	Edges   int    `json:"edges"`
	Skipped int    `json:"skipped_records"`
}

// ImportDB loads a dataset from the chat database, running the decrypt
// pipeline first when the import does not start from a plaintext file.
func (h *Handler) ImportDB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	owner := r.PathValue("owner")

	var req importDBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	path := req.Path
	if path == "" {
		step := decrypt.Step(req.Step)
		if req.Step == "" {
			step = decrypt.StepDecrypted
		}
		if req.FromDevice {
			if err := h.pipeline.FetchRaw(h.ingestCfg.ChatDBDir, owner, req.UID); err != nil {
				log.Error("device fetch failed", "owner", owner, "error", err)
				h.countLoad("db", "error")
				h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
				return
			}
			step = decrypt.StepRaw
		}
		decrypted, err := h.pipeline.Run(ctx, owner, step, req.UID, req.Key, req.Cleanup)
		if err != nil {
			log.Error("decrypt pipeline failed", "owner", owner, "step", step, "error", err)
			h.countLoad("db", "error")
			h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		path = decrypted
	}

	h.load(w, r, owner, ingest.NewSQLiteSource(path, owner))
}

// ImportJSON loads a dataset from a JSON export document in the request
// body.
func (h *Handler) ImportJSON(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	h.load(w, r, owner, ingest.NewJSONSource(r.Body, owner))
}

// load runs one ingest source to completion, builds the index, and installs
// it, replacing any previous dataset for the owner.
func (h *Handler) load(w http.ResponseWriter, r *http.Request, owner string, source ingest.Source) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	records, err := source.Records(ctx)
	if err != nil {
		log.Error("ingestion failed", "owner", owner, "source", source.Name(), "error", err)
		h.countLoad(source.Name(), "error")
		h.writeError(w, apperrors.HTTPStatusCode(err), "ingestion failed: "+err.Error())
		return
	}

	idx, skipped := membership.Build(records)
	h.store.Put(owner, idx)
	h.invalidateCache(r, owner)
	h.countLoad(source.Name(), "success")
	if h.metrics != nil {
		h.metrics.RecordsIngestedTotal.Add(float64(len(records) - skipped))
		h.metrics.RecordsSkippedTotal.Add(float64(skipped))
		h.metrics.DatasetGroups.WithLabelValues(owner).Set(float64(idx.GroupCount()))
		h.metrics.DatasetMembers.WithLabelValues(owner).Set(float64(idx.MemberCount()))
		h.metrics.LoadedDatasets.Set(float64(h.store.Len()))
	}

	log.Info("dataset imported",
		"owner", owner,
		"source", source.Name(),
		"groups", idx.GroupCount(),
		"members", idx.MemberCount(),
		"edges", idx.EdgeCount(),
		"skipped", skipped,
	)
	h.writeJSON(w, http.StatusOK, importResponse{
		Owner:   owner,
		Groups:  idx.GroupCount(),
		Members: idx.MemberCount(),
		Edges:   idx.EdgeCount(),
		Skipped: skipped,
	})
}

// DeleteDataset removes a loaded dataset.
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	if !h.store.Delete(owner) {
		h.writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	h.invalidateCache(r, owner)
	if h.metrics != nil {
		h.metrics.DatasetGroups.DeleteLabelValues(owner)
		h.metrics.DatasetMembers.DeleteLabelValues(owner)
		h.metrics.LoadedDatasets.Set(float64(h.store.Len()))
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ---------- Analysis queries ----------

// Pairs returns member pairs co-occurring in at least threshold groups.
func (h *Handler) Pairs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")
	idx, ok := h.lookupDataset(w, owner)
	if !ok {
		return
	}

	threshold := h.cfg.DefaultThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "threshold must be an integer")
			return
		}
		threshold = parsed
	}

	var pairs []analysis.Pair
	var err error
	cacheHit := false
	if h.pairCache != nil {
		pairs, cacheHit, err = h.pairCache.GetOrCompute(r.Context(), owner, threshold, func() ([]analysis.Pair, error) {
			return analysis.CoOccurringPairs(idx, threshold), nil
		})
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "pair query failed")
			return
		}
	} else {
		pairs = analysis.CoOccurringPairs(idx, threshold)
	}

	truncated := false
	if h.cfg.MaxPairsReturned > 0 && len(pairs) > h.cfg.MaxPairsReturned {
		pairs = pairs[:h.cfg.MaxPairsReturned]
		truncated = true
	}

	h.track(r, "pairs", owner, len(pairs), start, cacheHit)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"truncated": truncated,
		"pairs":     pairs,
	})
}

// Overlap returns the members of one group and their other groups.
func (h *Handler) Overlap(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")
	idx, ok := h.lookupDataset(w, owner)
	if !ok {
		return
	}
	groupID := r.PathValue("id")

	members, err := analysis.GroupOverlap(idx, groupID)
	if err != nil {
		h.queryError(w, r, "overlap", owner, err)
		return
	}
	h.track(r, "overlap", owner, len(members), start, false)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"group_id":   groupID,
		"group_name": idx.GroupName(groupID),
		"members":    members,
	})
}

type intersectionRequest struct {
	GroupIDs []string `json:"group_ids"`
}

// Intersection returns the members common to every listed group.
func (h *Handler) Intersection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")
	idx, ok := h.lookupDataset(w, owner)
	if !ok {
		return
	}

	var req intersectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	members, err := analysis.CommonMembers(idx, req.GroupIDs)
	if err != nil {
		h.queryError(w, r, "intersection", owner, err)
		return
	}
	h.track(r, "intersection", owner, len(members), start, false)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"group_ids": req.GroupIDs,
		"members":   members,
	})
}

// MemberGroups returns every group one member belongs to.
func (h *Handler) MemberGroups(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")
	idx, ok := h.lookupDataset(w, owner)
	if !ok {
		return
	}
	memberID := r.PathValue("id")

	groups, err := analysis.MemberGroupDetail(idx, memberID)
	if err != nil {
		h.queryError(w, r, "member_groups", owner, err)
		return
	}
	h.track(r, "member_groups", owner, len(groups), start, false)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"member_id":   memberID,
		"member_name": idx.MemberName(memberID),
		"groups":      groups,
	})
}

// Frequent returns members belonging to at least min_groups groups.
func (h *Handler) Frequent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")
	idx, ok := h.lookupDataset(w, owner)
	if !ok {
		return
	}

	minGroups := h.cfg.DefaultMinGroups
	if v := r.URL.Query().Get("min_groups"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "min_groups must be an integer")
			return
		}
		minGroups = parsed
	}

	members := analysis.FrequentMembers(idx, minGroups)
	h.track(r, "frequent", owner, len(members), start, false)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"min_groups": minGroups,
		"members":    members,
	})
}

// SearchGroups returns groups whose name contains the query substring.
func (h *Handler) SearchGroups(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := r.PathValue("owner")
	idx, ok := h.lookupDataset(w, owner)
	if !ok {
		return
	}

	limit := h.cfg.GroupSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	groups := analysis.SearchGroups(idx, r.URL.Query().Get("q"), limit)
	h.track(r, "group_search", owner, len(groups), start, false)
	h.writeJSON(w, http.StatusOK, groups)
}

// Stats serves the aggregated query statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// ScanUIDs lists the account/UID mappings found on the device, for hosts
// running next to the chat client.
func (h *Handler) ScanUIDs(w http.ResponseWriter, r *http.Request) {
	mappings, err := decrypt.ScanUIDs(h.ingestCfg.ChatUIDDir)
	if err != nil {
		h.logger.Error("uid scan failed", "dir", h.ingestCfg.ChatUIDDir, "error", err)
		h.writeError(w, http.StatusInternalServerError, "uid scan failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"available": mappings != nil,
		"uids":      mappings,
	})
}

// ---------- Helpers ----------

func (h *Handler) lookupDataset(w http.ResponseWriter, owner string) (*membership.Index, bool) {
	idx, ok := h.store.Get(owner)
	if !ok {
		h.writeError(w, http.StatusNotFound, "dataset not found for owner "+owner)
		return nil, false
	}
	return idx, true
}

func (h *Handler) queryError(w http.ResponseWriter, r *http.Request, kind, owner string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("query failed", "kind", kind, "owner", owner, "error", err)
	} else {
		log.Info("query rejected", "kind", kind, "owner", owner, "status", status, "error", err)
	}
	if h.metrics != nil {
		outcome := "error"
		if errors.Is(err, apperrors.ErrGroupNotFound) || errors.Is(err, apperrors.ErrMemberNotFound) {
			outcome = "not_found"
		} else if errors.Is(err, apperrors.ErrInvalidInput) {
			outcome = "invalid"
		}
		h.metrics.QueriesTotal.WithLabelValues(kind, outcome).Inc()
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) track(r *http.Request, kind, owner string, results int, start time.Time, cacheHit bool) {
	elapsed := time.Since(start)
	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(kind, "success").Inc()
		h.metrics.QueryLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
		if h.pairCache != nil && kind == "pairs" {
			if cacheHit {
				h.metrics.CacheHitsTotal.Inc()
			} else {
				h.metrics.CacheMissesTotal.Inc()
			}
		}
	}
	h.aggregator.Record(stats.QueryEvent{
		Kind:      kind,
		Owner:     owner,
		Results:   results,
		LatencyMs: elapsed.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestIDFromContext(r.Context()),
	})
}

func (h *Handler) invalidateCache(r *http.Request, owner string) {
	if h.pairCache == nil {
		return
	}
	if err := h.pairCache.InvalidateOwner(r.Context(), owner); err != nil {
		h.logger.Error("cache invalidation failed", "owner", owner, "error", err)
	}
}

func (h *Handler) countLoad(source, status string) {
	if h.metrics != nil {
		h.metrics.DatasetLoadsTotal.WithLabelValues(source, status).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
