package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/simon-b/atuin/internal/syncproto"
)

// handlePush stores a batch of encrypted records. All-or-nothing: every
// record in the batch is durable before any id is acknowledged, so clients
// retry at batch granularity.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	var req syncproto.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if err := syncproto.ValidatePush(&req); err != nil {
		if errors.Is(err, syncproto.ErrPayloadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	acked := make([]string, 0, len(req.Records))
	for i := range req.Records {
		if err := s.history.Upsert(user.UserID, &req.Records[i]); err != nil {
			logFor(r.Context()).Error("upsert record", "id", req.Records[i].ID, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store records")
			return
		}
		acked = append(acked, req.Records[i].ID)
	}

	s.metrics.RecordPushRecords(int64(len(acked)))
	writeJSON(w, http.StatusOK, syncproto.PushResponse{AckedIDs: acked})
}

// handlePull returns one page of records after the requested sequence.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	s.metrics.RecordPullRequest()

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, hasMore, err := s.history.PageSince(user.UserID, since, limit)
	if err != nil {
		logFor(r.Context()).Error("page history", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read history")
		return
	}
	maxSeq, err := s.history.MaxGlobalSeq(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("max global_seq", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read history")
		return
	}

	if recs == nil {
		recs = []syncproto.SyncedRecord{}
	}
	writeJSON(w, http.StatusOK, syncproto.PullResponse{
		Records:      recs,
		HasMore:      hasMore,
		MaxGlobalSeq: maxSeq,
	})
}

// handleCount returns the account's record count, tombstones included.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	n, err := s.history.Count(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("count history", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to count history")
		return
	}
	writeJSON(w, http.StatusOK, syncproto.CountResponse{Count: n})
}
