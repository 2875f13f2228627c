package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkgraph-crawler/internal/config"
	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
	maxRequestBody  = 1 << 20
)

// jobRequest mirrors the crawl configuration accepted by POST /v1/jobs.
// Omitted fields take the configured crawler defaults.
type jobRequest struct {
	SeedURL         string              `json:"seed_url"`
	MaxDepth        *int                `json:"max_depth"`
	RequestTimeout  *float64            `json:"request_timeout"`
	GlobalTimeout   *float64            `json:"global_timeout"`
	HardLinkLimit   *int                `json:"hard_link_limit"`
	StayInDomain    *bool               `json:"stay_in_domain"`
	SearchMethod    *string             `json:"search_method"`
	AllowedSchemes  []string            `json:"allowed_schemes"`
	LinkFilter      *crawler.LinkFilter `json:"link_filter"`
	UserAgents      []string            `json:"user_agents"`
	ProxyList       []string            `json:"proxy_list"`
	FollowRobotsTxt *bool               `json:"follow_robots_txt"`
	ObeyRateLimit   *float64            `json:"obey_rate_limit"`
	MaxConcurrency  *int                `json:"max_concurrency"`
	StoreBody       *bool               `json:"export_store_body"`
	MaxBodyChars    *int                `json:"max_body_chars"`
	HTMLOnly        *bool               `json:"respect_content_type_html_only"`
}

// toCrawlConfig overlays the request on the defaults. Validation is left to
// the job manager.
func (req jobRequest) toCrawlConfig(defaults crawler.CrawlConfig) crawler.CrawlConfig {
	cfg := defaults
	cfg.SeedURL = strings.TrimSpace(req.SeedURL)
	cfg.MaxDepth = valueOrDefault(req.MaxDepth, defaults.MaxDepth)
	if req.RequestTimeout != nil {
		cfg.RequestTimeout = config.Seconds(*req.RequestTimeout)
	}
	if req.GlobalTimeout != nil {
		cfg.GlobalTimeout = config.Seconds(*req.GlobalTimeout)
	}
	cfg.HardLinkLimit = valueOrDefault(req.HardLinkLimit, defaults.HardLinkLimit)
	cfg.StayInDomain = valueOrDefault(req.StayInDomain, defaults.StayInDomain)
	if req.SearchMethod != nil {
		cfg.SearchMethod = crawler.SearchMethod(strings.ToUpper(strings.TrimSpace(*req.SearchMethod)))
	}
	if req.AllowedSchemes != nil {
		cfg.AllowedSchemes = req.AllowedSchemes
	}
	if req.LinkFilter != nil {
		cfg.Filter = *req.LinkFilter
	}
	if req.UserAgents != nil {
		cfg.UserAgents = req.UserAgents
	}
	if req.ProxyList != nil {
		cfg.Proxies = req.ProxyList
	}
	cfg.FollowRobotsTxt = valueOrDefault(req.FollowRobotsTxt, defaults.FollowRobotsTxt)
	if req.ObeyRateLimit != nil {
		cfg.Delay = config.Seconds(*req.ObeyRateLimit)
	}
	cfg.MaxConcurrency = valueOrDefault(req.MaxConcurrency, defaults.MaxConcurrency)
	cfg.StoreBodies = valueOrDefault(req.StoreBody, defaults.StoreBodies)
	cfg.MaxBodyChars = valueOrDefault(req.MaxBodyChars, defaults.MaxBodyChars)
	cfg.HTMLOnly = valueOrDefault(req.HTMLOnly, defaults.HTMLOnly)
	return cfg
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	runID, err := s.jobs.Submit(r.Context(), req.toCrawlConfig(s.defaults))
	if err != nil {
		if errors.Is(err, crawler.ErrInvalidConfig) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit job failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "started"})
}

// listJobs handles GET /v1/jobs?status=&limit=&offset=. Jobs are ordered by
// creation time.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter crawler.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		if filter, err = parseStatus(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	all, err := s.jobs.List(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	jobs := make([]crawler.JobSummary, 0, len(all))
	for _, job := range all {
		if filter == "" || job.Status == filter {
			jobs = append(jobs, job)
		}
	}
	jobs = page(jobs, limit, offset)
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.jobs.Stop(r.Context(), runID); err != nil {
		s.handleLookupError(w, runID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "stopping"})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	summary, err := s.jobs.Status(r.Context(), runID)
	if err != nil {
		s.handleLookupError(w, runID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	result, err := s.jobs.Result(r.Context(), runID)
	if err != nil {
		s.handleLookupError(w, runID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) exportJob(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	format := chi.URLParam(r, "format")
	file, err := s.jobs.Export(r.Context(), runID, format)
	if err != nil {
		if errors.Is(err, crawler.ErrUnsupportedFormat) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.handleLookupError(w, runID, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		s.logger.Warn("write export failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Server) handleLookupError(w http.ResponseWriter, runID string, err error) {
	switch {
	case errors.Is(err, crawler.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, crawler.ErrArtifactsNotFound):
		s.writeError(w, http.StatusNotFound, "artifacts not found")
	default:
		s.logger.Error("job lookup failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (crawler.JobStatus, error) {
	switch status := crawler.JobStatus(strings.ToLower(input)); status {
	case crawler.JobStatusQueued, crawler.JobStatusRunning, crawler.JobStatusFinished,
		crawler.JobStatusStopped, crawler.JobStatusError:
		return status, nil
	default:
		return "", errors.New("invalid status")
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
