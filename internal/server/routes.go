package server

import (
	"net/http"

	"github.com/aaqwq/groupscope/pkg/health"
)

// Routes registers every API endpoint on a new ServeMux.
func Routes(h *Handler, checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/datasets", h.ListDatasets)
	mux.HandleFunc("POST /api/v1/datasets/{owner}/import/db", h.ImportDB)
	mux.HandleFunc("POST /api/v1/datasets/{owner}/import/json", h.ImportJSON)
	mux.HandleFunc("DELETE /api/v1/datasets/{owner}", h.DeleteDataset)

	mux.HandleFunc("GET /api/v1/datasets/{owner}/groups", h.SearchGroups)
	mux.HandleFunc("GET /api/v1/datasets/{owner}/pairs", h.Pairs)
	mux.HandleFunc("GET /api/v1/datasets/{owner}/groups/{id}/overlap", h.Overlap)
	mux.HandleFunc("POST /api/v1/datasets/{owner}/intersection", h.Intersection)
	mux.HandleFunc("GET /api/v1/datasets/{owner}/members/{id}/groups", h.MemberGroups)
	mux.HandleFunc("GET /api/v1/datasets/{owner}/frequent", h.Frequent)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/system/uids", h.ScanUIDs)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	return mux
}
