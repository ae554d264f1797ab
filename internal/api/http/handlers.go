package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/relmap/relmap/internal/api"
	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/manifest"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Handler serves the API of a service.
type Handler struct {
	service *api.Service
	mux     *http.ServeMux
}

// NewHandler routes the API endpoints to svc, wrapped in
// DefaultMiddleware plus any extra middleware, outermost first.
func NewHandler(svc *api.Service, extra ...Middleware) http.Handler {
	h := &Handler{service: svc, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /v1/query", h.query)
	h.mux.HandleFunc("POST /v1/count", h.count)
	h.mux.HandleFunc("POST /v1/insert", h.insert)
	h.mux.HandleFunc("POST /v1/upsert", h.upsert)
	h.mux.HandleFunc("GET /v1/partitions", h.partitions)
	h.mux.HandleFunc("GET /v1/entities", h.entities)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("GET /healthz", h.health)

	chain := append([]Middleware{}, extra...)
	return Chain(append(chain, DefaultMiddleware())...)(h.mux)
}

// CountResponse is the body of /v1/count.
type CountResponse struct {
	Entity    string `json:"entity"`
	Count     int64  `json:"count"`
	RequestID string `json:"request_id"`
}

// PartitionsResponse is the body of /v1/partitions.
type PartitionsResponse struct {
	Entity     string                     `json:"entity"`
	Partitions []manifest.PartitionRecord `json:"partitions"`
}

// QueryResponse adds execution details to api.QueryResponse.
type QueryResponse struct {
	*api.QueryResponse
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	RequestID       string `json:"request_id"`
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if !decode(w, r, &req) {
		return
	}
	start := time.Now()
	resp, err := h.service.Query(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		QueryResponse:   resp,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		RequestID:       GetRequestID(r.Context()),
	})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.service.Count(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Entity: req.Entity, Count: n, RequestID: GetRequestID(r.Context())})
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request) {
	var req api.WriteRequest
	if !decode(w, r, &req) {
		return
	}
	req.Upsert = nil
	h.write(w, r, req)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req api.WriteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Upsert == nil {
		fail(w, r, relerr.InvalidUpsert("upsert options are required"))
		return
	}
	h.write(w, r, req)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, req api.WriteRequest) {
	resp, err := h.service.Write(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if req.Upsert != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) partitions(w http.ResponseWriter, r *http.Request) {
	entity := r.URL.Query().Get("entity")
	if entity == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "entity is required", RequestID: GetRequestID(r.Context())})
		return
	}
	parts, err := h.service.Partitions(r.Context(), entity)
	if err != nil {
		fail(w, r, err)
		return
	}
	if parts == nil {
		parts = []manifest.PartitionRecord{}
	}
	writeJSON(w, http.StatusOK, PartitionsResponse{Entity: entity, Partitions: parts})
}

func (h *Handler) entities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"entities": h.service.Entities()})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	n := 10
	if s := r.URL.Query().Get("top"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid top %q", s), RequestID: GetRequestID(r.Context())})
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, h.service.Stats(n))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body with numbers kept as json.Number, answering
// 400 when it is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     fmt.Sprintf("invalid request body: %v", err),
			RequestID: GetRequestID(r.Context()),
		})
		return false
	}
	return true
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, StatusFor(err), ErrorResponse{
		Error:     err.Error(),
		Code:      relerr.GetCode(err),
		RequestID: GetRequestID(r.Context()),
	})
}

// StatusFor maps an error to the HTTP status reporting it.
func StatusFor(err error) int {
	switch relerr.GetCode(err) {
	case relerr.CodeHeadingNotFound, relerr.CodeRowNotFound, relerr.CodePartitionNotFound, relerr.CodeObjectNotFound:
		return http.StatusNotFound
	}
	switch relerr.GetCategory(err) {
	case relerr.ErrCategorySchema, relerr.ErrCategoryValue:
		return http.StatusBadRequest
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
