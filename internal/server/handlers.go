package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pressbridge/pressbridge/internal/metrics"
	"github.com/pressbridge/pressbridge/internal/sync"
)

// signatureHeader carries the webhook HMAC signature computed by the
// companion plugin.
const signatureHeader = "X-PressBridge-Signature"

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload sync.InboundChange
	if err := decode(r, &payload); err != nil {
		badRequest(w, fmt.Sprintf("invalid webhook payload: %v", err))
		return
	}

	start := time.Now()
	result, err := s.svc.Ingestor.Ingest(r.Context(), payload, r.Header.Get(signatureHeader))
	s.stats.RecordTiming(metrics.OpWebhook, time.Since(start), err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type pullRequest struct {
	OrgID  string `json:"org_id"`
	SiteID string `json:"site_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, fmt.Sprintf("invalid pull request: %v", err))
		return
	}
	if req.OrgID == "" {
		badRequest(w, "org_id is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.PullBatchLimit
	}

	start := time.Now()

	// Single-site pull when a site is named, otherwise every due site.
	if req.SiteID != "" {
		site, err := s.svc.Store.GetSite(r.Context(), req.SiteID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if site.OrgID != req.OrgID {
			s.writeError(w, r, fmt.Errorf("site %s: %w", req.SiteID, sync.ErrTenantMismatch))
			return
		}
		result, err := s.svc.Puller.PullIncremental(r.Context(), *site, limit)
		s.stats.RecordTiming(metrics.OpPull, time.Since(start), err == nil)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	results, err := s.svc.Puller.PullAllDue(r.Context(), req.OrgID, limit)
	s.stats.RecordTiming(metrics.OpPull, time.Since(start), err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": results})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req sync.PushRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, fmt.Sprintf("invalid push request: %v", err))
		return
	}
	if req.OrgID == "" || req.SiteID == "" || req.ContentID == "" {
		badRequest(w, "org_id, site_id and content_id are required")
		return
	}
	if req.CorrelationID == "" {
		// The push's correlation id doubles as the loop-guard origin token,
		// so every push must carry one.
		req.CorrelationID = CorrelationID(r.Context())
	}

	start := time.Now()
	result, err := s.svc.Pusher.PushPage(r.Context(), req)
	s.stats.RecordTiming(metrics.OpPush, time.Since(start), err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		badRequest(w, "org_id is required")
		return
	}

	if siteID := r.URL.Query().Get("site_id"); siteID != "" {
		snap, err := s.svc.Health.SiteHealth(r.Context(), orgID, siteID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	snaps, err := s.svc.Health.OrganizationHealth(r.Context(), orgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": snaps})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		badRequest(w, "org_id is required")
		return
	}

	recs, err := s.svc.Detector.OpenConflicts(r.Context(), orgID, r.URL.Query().Get("site_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": recs})
}

type resolveRequest struct {
	ConflictID string `json:"conflict_id"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, fmt.Sprintf("invalid resolve request: %v", err))
		return
	}
	if req.ConflictID == "" {
		badRequest(w, "conflict_id is required")
		return
	}

	if err := s.svc.Detector.Resolve(r.Context(), req.ConflictID, req.Note); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true, "conflict_id": req.ConflictID})
}

type reindexRequest struct {
	Limit   int  `json:"limit,omitempty"`
	Process bool `json:"process,omitempty"`
}

func (s *Server) handleReindexRun(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, fmt.Sprintf("invalid reindex request: %v", err))
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.ReindexBatchLimit
	}

	start := time.Now()
	result, err := s.svc.Queue.RunIncremental(r.Context(), limit)
	s.stats.RecordTiming(metrics.OpReindexRun, time.Since(start), err == nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{"admission": result}
	if req.Process {
		work, err := s.svc.Worker.ProcessQueued(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp["work"] = work
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}
