// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"policy-atlas/internal/crawler"
	"policy-atlas/internal/database"
	custom_errors "policy-atlas/internal/errors"
	"policy-atlas/internal/jobs"
	"policy-atlas/internal/model"
)

// JobClient is the slice of the River client the API needs.
type JobClient interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
	JobGet(ctx context.Context, id int64) (*rivertype.JobRow, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db     database.Store
	jobs   JobClient
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db database.Store, jobClient JobClient, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		jobs:   jobClient,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/policies", h.listPolicies)
		r.Get("/policies/search/all", h.searchPolicies)
		r.Get("/policies/{id}", h.getPolicy)
		r.Post("/crawl/trigger", h.triggerCrawl)
		r.Get("/crawl/status/{id}", h.getCrawlStatus)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listPolicies handles the paginated policy listing.
// GET /v1/policies?page=N&page_size=N&sort_by=recent|votes|ai-score
func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	params, ok := parseListParams(w, r)
	if !ok {
		return
	}

	items, total, err := h.db.ListPolicies(r.Context(), params)
	if err != nil {
		h.logger.Error("Failed to list policies", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, newPolicyListResponse(items, total, params))
}

// searchPolicies handles filtered policy search.
// GET /v1/policies/search/all?q=...&language=...&min_score=...&max_score=...
func (h *Handler) searchPolicies(w http.ResponseWriter, r *http.Request) {
	listParams, ok := parseListParams(w, r)
	if !ok {
		return
	}

	minScore, ok := parseScoreParam(w, r, "min_score")
	if !ok {
		return
	}
	maxScore, ok := parseScoreParam(w, r, "max_score")
	if !ok {
		return
	}

	params := database.SearchPoliciesParams{
		ListPoliciesParams: listParams,
		Query:              r.URL.Query().Get("q"),
		Language:           r.URL.Query().Get("language"),
		MinScore:           minScore,
		MaxScore:           maxScore,
	}

	items, total, err := h.db.SearchPolicies(r.Context(), params)
	if err != nil {
		h.logger.Error("Failed to search policies", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, newPolicyListResponse(items, total, listParams))
}

// getPolicy handles the single-policy lookup.
// GET /v1/policies/{id}
func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid policy id")
		return
	}

	policy, err := h.db.GetPolicy(r.Context(), id)
	if err != nil {
		if errors.Is(err, custom_errors.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Policy not found")
			return
		}
		h.logger.Error("Failed to get policy", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, newPolicyResponse(*policy))
}

type triggerRequest struct {
	Mode          string `json:"mode"`
	ResultLimit   int    `json:"result_limit"`
	StarThreshold int    `json:"star_threshold"`
}

// triggerCrawl enqueues a crawl job and returns immediately.
// POST /v1/crawl/trigger
func (h *Handler) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	mode, err := crawler.ParseMode(req.Mode)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ResultLimit < 0 || req.StarThreshold < 0 {
		respondWithError(w, http.StatusBadRequest, "result_limit and star_threshold must not be negative")
		return
	}

	result, err := h.jobs.Insert(r.Context(), jobs.CrawlArgs{
		Mode:          string(mode),
		ResultLimit:   req.ResultLimit,
		StarThreshold: req.StarThreshold,
	}, nil)
	if err != nil {
		h.logger.Error("Failed to enqueue crawl job", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to queue crawl task")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]any{
		"status":       "queued",
		"job_id":       result.Job.ID,
		"check_status": "/v1/crawl/status/" + strconv.FormatInt(result.Job.ID, 10),
	})
}

// getCrawlStatus reports the state of a previously queued crawl job.
// GET /v1/crawl/status/{id}
func (h *Handler) getCrawlStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	job, err := h.jobs.JobGet(r.Context(), id)
	if err != nil {
		if errors.Is(err, river.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("Failed to get job", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := map[string]any{
		"job_id":  job.ID,
		"state":   string(job.State),
		"attempt": job.Attempt,
	}
	if len(job.Errors) > 0 {
		resp["last_error"] = job.Errors[len(job.Errors)-1].Error
	}
	if stats := recordedStats(job.Metadata); stats != nil {
		resp["stats"] = stats
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// recordedStats extracts the run stats the crawl worker recorded on the job
// row, if any. River stores recorded output in job metadata under "output".
func recordedStats(metadata []byte) *model.RunStats {
	if len(metadata) == 0 {
		return nil
	}
	var meta struct {
		Output *model.RunStats `json:"output"`
	}
	if err := json.Unmarshal(metadata, &meta); err != nil {
		return nil
	}
	return meta.Output
}

func parseListParams(w http.ResponseWriter, r *http.Request) (database.ListPoliciesParams, bool) {
	params := database.ListPoliciesParams{
		Page:     1,
		PageSize: 20,
		SortBy:   "recent",
	}

	q := r.URL.Query()
	if s := q.Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be an integer >= 1.")
			return params, false
		}
		params.Page = page
	}
	if s := q.Get("page_size"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil || size < 1 || size > 100 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'page_size' parameter. Must be an integer between 1 and 100.")
			return params, false
		}
		params.PageSize = size
	}
	switch s := q.Get("sort_by"); s {
	case "", "recent", "votes", "ai-score":
		if s != "" {
			params.SortBy = s
		}
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid 'sort_by' parameter. Must be one of: recent, votes, ai-score.")
		return params, false
	}

	return params, true
}

func parseScoreParam(w http.ResponseWriter, r *http.Request, name string) (*float64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 100 {
		respondWithError(w, http.StatusBadRequest, "Invalid '"+name+"' parameter. Must be a number between 0 and 100.")
		return nil, false
	}
	return &v, true
}

type repositoryResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	FullName  string     `json:"full_name"`
	Stars     int        `json:"stars"`
	Forks     int        `json:"forks"`
	Language  *string    `json:"language"`
	URL       string     `json:"url"`
	UpdatedAt *time.Time `json:"updated_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type policyResponse struct {
	ID             uuid.UUID          `json:"id"`
	RepoID         uuid.UUID          `json:"repo_id"`
	Filename       string             `json:"filename"`
	FilePath       string             `json:"file_path"`
	FileURL        string             `json:"file_url"`
	Content        string             `json:"content"`
	Summary        *string            `json:"summary"`
	Tags           []string           `json:"tags"`
	AIScore        *float64           `json:"ai_score"`
	UpvotesCount   int                `json:"upvotes_count"`
	DownvotesCount int                `json:"downvotes_count"`
	Language       *string            `json:"language"`
	CreatedAt      time.Time          `json:"created_at"`
	Repo           repositoryResponse `json:"repo"`
}

type policyListResponse struct {
	Items      []policyResponse `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

func newPolicyResponse(p model.PolicyWithRepo) policyResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return policyResponse{
		ID:             p.ID,
		RepoID:         p.RepoID,
		Filename:       p.Filename,
		FilePath:       p.FilePath,
		FileURL:        p.FileURL,
		Content:        p.Content,
		Summary:        p.Summary,
		Tags:           tags,
		AIScore:        p.AIScore,
		UpvotesCount:   p.UpvotesCount,
		DownvotesCount: p.DownvotesCount,
		Language:       p.Policy.Language,
		CreatedAt:      p.CreatedAt,
		Repo: repositoryResponse{
			ID:        p.Repo.ID,
			Name:      p.Repo.Name,
			FullName:  p.Repo.FullName,
			Stars:     p.Repo.Stars,
			Forks:     p.Repo.Forks,
			Language:  p.Repo.Language,
			URL:       p.Repo.URL,
			UpdatedAt: p.Repo.UpdatedAt,
			CreatedAt: p.Repo.CreatedAt,
		},
	}
}

func newPolicyListResponse(items []model.PolicyWithRepo, total int, params database.ListPoliciesParams) policyListResponse {
	resp := policyListResponse{
		Items:      make([]policyResponse, 0, len(items)),
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: (total + params.PageSize - 1) / params.PageSize,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, newPolicyResponse(item))
	}
	return resp
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
