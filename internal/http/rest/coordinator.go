package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/logctx"
	"github.com/italolelis/segment_coordinator/internal/notifier"
	"github.com/italolelis/segment_coordinator/internal/segment"
	"github.com/italolelis/segment_coordinator/internal/storage"
)

// maxWaitTimeout caps the long-poll wait so requests stay inside the
// server's write timeout.
const maxWaitTimeout = 55 * time.Second

const defaultWaitTimeout = 30 * time.Second

// SegmentRef is the wire form of a segment identity.
type SegmentRef struct {
	JobID        string `json:"job_id"`
	StreamType   string `json:"stream_type"`
	Quality      string `json:"quality"`
	StreamIndex  int    `json:"stream_index"`
	SegmentIndex int    `json:"segment_index"`
}

func (r SegmentRef) identity() (segment.Identity, error) {
	return segment.NewIdentity(r.JobID, r.StreamType, r.Quality, r.StreamIndex, r.SegmentIndex)
}

type ClaimRequest struct {
	SegmentRef
	WorkerID string `json:"worker_id"`
}

type ClaimResponse struct {
	Acquired   bool   `json:"acquired"`
	SegmentKey string `json:"segment_key"`
	WorkerID   string `json:"worker_id"`
	// ExpiresAt is epoch milliseconds; zero when the claim was not acquired.
	ExpiresAt int64 `json:"expires_at"`
}

type ExtendResponse struct {
	Extended bool `json:"extended"`
}

type StatusResponse struct {
	SegmentKey string `json:"segment_key"`
	Status     string `json:"status"`
}

type CompletedResponse struct {
	SegmentKey string `json:"segment_key"`
	Completed  bool   `json:"completed"`
}

type EventResponse struct {
	Operation  string `json:"operation"`
	StoreKey   string `json:"store_key"`
	WorkerID   string `json:"worker_id,omitempty"`
	Outcome    string `json:"outcome"`
	RecordedAt string `json:"recorded_at"`
}

// CoordinatorHandler exposes the claim-lease protocol to pipeline
// workers that talk HTTP instead of holding their own store client.
type CoordinatorHandler struct {
	username string
	password string
	coord    *coordination.Coordinator
	keys     segment.Keys

	// events is nil when the local journal is disabled.
	events storage.EventReadRepository

	// notif is nil when no completion webhook is configured.
	notif notifier.Notifier
}

// NewCoordinatorHandler creates a new coordination handler.
func NewCoordinatorHandler(username, password string, coord *coordination.Coordinator, keys segment.Keys, events storage.EventReadRepository, notif notifier.Notifier) *CoordinatorHandler {
	return &CoordinatorHandler{
		username: username,
		password: password,
		coord:    coord,
		keys:     keys,
		events:   events,
		notif:    notif,
	}
}

func (h *CoordinatorHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.basicAuthMiddleware)

	r.Post("/v1/segments/claim", h.HandleClaim)
	r.Post("/v1/segments/extend", h.HandleExtend)
	r.Post("/v1/segments/release", h.HandleRelease)
	r.Post("/v1/segments/complete", h.HandleComplete)
	r.Get("/v1/segments/status", h.HandleStatus)
	r.Get("/v1/segments/completed", h.HandleCompleted)
	r.Get("/v1/segments/wait", h.HandleWait)
	r.Get("/v1/segments/events", h.HandleEvents)

	return r
}

// HandleClaim attempts to acquire the segment lease for a worker.
// Contention is a normal 200 response with acquired=false.
func (h *CoordinatorHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, workerID, ok := h.decodeClaimRequest(w, r)
	if !ok {
		return
	}

	claim, err := h.coord.Claim(r.Context(), id, workerID)
	if err != nil {
		logger.Error("failed to claim segment", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)

		return
	}

	resp := ClaimResponse{
		Acquired:   claim.Acquired,
		SegmentKey: claim.SegmentKey,
		WorkerID:   claim.OwnerID,
	}
	if claim.Acquired {
		resp.ExpiresAt = claim.ExpiresAt.UnixMilli()
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleExtend renews a worker's lease. A refused renewal (expired or
// reclaimed lease) is a normal 200 response with extended=false.
func (h *CoordinatorHandler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, workerID, ok := h.decodeClaimRequest(w, r)
	if !ok {
		return
	}

	extended, err := h.coord.ExtendClaim(r.Context(), id, workerID)
	if err != nil {
		logger.Error("failed to extend lease", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)

		return
	}

	writeJSON(w, http.StatusOK, ExtendResponse{Extended: extended})
}

// HandleRelease releases a worker's lease. Releasing a lease the worker
// no longer owns is a silent no-op.
func (h *CoordinatorHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, workerID, ok := h.decodeClaimRequest(w, r)
	if !ok {
		return
	}

	if err := h.coord.ReleaseClaim(r.Context(), id, workerID); err != nil {
		logger.Error("failed to release lease", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete durably marks the segment finished and publishes the
// completion notification to current subscribers.
func (h *CoordinatorHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, ok := h.decodeSegmentRef(w, r)
	if !ok {
		return
	}

	if err := h.coord.MarkSegmentCompleted(r.Context(), id); err != nil {
		logger.Error("failed to mark segment completed", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)

		return
	}

	if err := h.coord.PublishSegmentComplete(r.Context(), id); err != nil {
		// Completion is durably recorded; the lost notification only
		// delays pollers, so don't fail the request over it.
		logger.Warn("failed to publish segment completion", "segment", id.Key(), "err", err)
	}

	if h.notif != nil {
		go func() {
			if err := h.notif.Notify(fmt.Sprintf("segment %s completed", id.Key())); err != nil {
				logger.Warn("failed to notify segment completion", "segment", id.Key(), "err", err)
			}
		}()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CoordinatorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, ok := h.parseSegmentQuery(w, r)
	if !ok {
		return
	}

	status, err := h.coord.GetSegmentStatus(r.Context(), id)
	if err != nil {
		logger.Error("failed to get segment status", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)

		return
	}

	if status == "" {
		http.Error(w, "segment status not found", http.StatusNotFound)

		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{SegmentKey: id.Key(), Status: string(status)})
}

func (h *CoordinatorHandler) HandleCompleted(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, ok := h.parseSegmentQuery(w, r)
	if !ok {
		return
	}

	completed, err := h.coord.IsSegmentCompleted(r.Context(), id)
	if err != nil {
		logger.Error("failed to check segment completion", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)

		return
	}

	writeJSON(w, http.StatusOK, CompletedResponse{SegmentKey: id.Key(), Completed: completed})
}

// HandleWait long-polls until the segment completes or the timeout
// elapses. It subscribes before checking the completion record, so a
// completion that lands between the two is not missed.
func (h *CoordinatorHandler) HandleWait(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, ok := h.parseSegmentQuery(w, r)
	if !ok {
		return
	}

	timeout := defaultWaitTimeout

	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid timeout", http.StatusBadRequest)

			return
		}

		timeout = min(parsed, maxWaitTimeout)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	err := h.coord.WaitForSegment(ctx, id)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, CompletedResponse{SegmentKey: id.Key(), Completed: true})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusRequestTimeout, CompletedResponse{SegmentKey: id.Key(), Completed: false})
	default:
		logger.Error("failed to wait for segment", "segment", id.Key(), "err", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)
	}
}

// HandleEvents returns the most recent journaled lease events for a
// segment, newest first. The journal is per-instance; this endpoint
// only shows what this coordinator did.
func (h *CoordinatorHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	if h.events == nil {
		http.Error(w, "event journal is disabled", http.StatusNotFound)

		return
	}

	id, ok := h.parseSegmentQuery(w, r)
	if !ok {
		return
	}

	limit := 50

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)

			return
		}

		limit = min(parsed, 500)
	}

	storeKeys := []string{h.keys.Lock(id), h.keys.Completion(id)}

	records, err := h.events.GetEvents(r.Context(), storeKeys, limit)
	if err != nil {
		logger.Error("failed to read segment events", "segment", id.Key(), "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)

		return
	}

	resp := make([]EventResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, EventResponse{
			Operation:  record.Operation,
			StoreKey:   record.StoreKey,
			WorkerID:   record.OwnerID,
			Outcome:    record.Outcome,
			RecordedAt: record.RecordedAt.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *CoordinatorHandler) decodeClaimRequest(w http.ResponseWriter, r *http.Request) (segment.Identity, string, bool) {
	logger := logctx.LoggerFromContext(r.Context())

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return segment.Identity{}, "", false
	}

	if req.WorkerID == "" {
		http.Error(w, "worker_id is required", http.StatusBadRequest)

		return segment.Identity{}, "", false
	}

	id, err := req.identity()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return segment.Identity{}, "", false
	}

	return id, req.WorkerID, true
}

func (h *CoordinatorHandler) decodeSegmentRef(w http.ResponseWriter, r *http.Request) (segment.Identity, bool) {
	logger := logctx.LoggerFromContext(r.Context())

	var ref SegmentRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return segment.Identity{}, false
	}

	id, err := ref.identity()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return segment.Identity{}, false
	}

	return id, true
}

func (h *CoordinatorHandler) parseSegmentQuery(w http.ResponseWriter, r *http.Request) (segment.Identity, bool) {
	q := r.URL.Query()

	streamIndex, err := strconv.Atoi(q.Get("stream_index"))
	if err != nil {
		http.Error(w, "invalid stream_index", http.StatusBadRequest)

		return segment.Identity{}, false
	}

	segmentIndex, err := strconv.Atoi(q.Get("segment_index"))
	if err != nil {
		http.Error(w, "invalid segment_index", http.StatusBadRequest)

		return segment.Identity{}, false
	}

	id, err := segment.NewIdentity(q.Get("job_id"), q.Get("stream_type"), q.Get("quality"), streamIndex, segmentIndex)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return segment.Identity{}, false
	}

	return id, true
}

func (h *CoordinatorHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
