package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"tchouf/internal/app"
	"tchouf/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Handlers struct {
	Accounts *app.AccountService
	Dir      *app.DirectoryService
	Ratings  *app.RatingService
	Claims   *app.ClaimService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/users/sync", h.syncUser)
	s.mux.Get("/v1/users/{id}", h.getUser)

	s.mux.Post("/v1/businesses", h.createBusiness)
	s.mux.Get("/v1/businesses", h.searchBusinesses)
	s.mux.Get("/v1/businesses/featured", h.featuredBusinesses)
	s.mux.Get("/v1/businesses/{id}", h.getBusiness)
	s.mux.Put("/v1/businesses/{id}", h.updateBusiness)

	s.mux.Post("/v1/businesses/{id}/reviews", h.createReview)
	s.mux.Get("/v1/businesses/{id}/reviews", h.listReviews)
	s.mux.Put("/v1/reviews/{id}", h.updateReview)
	s.mux.Delete("/v1/reviews/{id}", h.deleteReview)

	s.mux.Post("/v1/businesses/{id}/claims", h.createClaim)
	s.mux.Get("/v1/businesses/{id}/claims", h.listBusinessClaims)
	s.mux.Get("/v1/claims", h.listClaims)
	s.mux.Post("/v1/claims/{id}/decision", h.decideClaim)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps the shared error taxonomy onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, domain.ErrConstraintViolation):
		writeProblem(w, http.StatusUnprocessableEntity, "Constraint Violation", err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "Backend Unavailable", "storage backend is unavailable")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// decodeValid decodes the body into dst and runs struct validation; the
// schema check lives here so the services only see well-shaped input.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// ---- users ----

type syncUserReq struct {
	UID         string `json:"uid" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"displayName" validate:"required,max=120"`
	PhotoURL    string `json:"photoUrl" validate:"omitempty,url"`
}

func (h *Handlers) syncUser(w http.ResponseWriter, r *http.Request) {
	var req syncUserReq
	if !decodeValid(w, r, &req) {
		return
	}
	u, err := h.Accounts.Sync(r.Context(), req.UID, req.Email, req.DisplayName, req.PhotoURL)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.Accounts.Get(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ---- businesses ----

type createBusinessReq struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Category    string   `json:"category" validate:"required,max=80"`
	Description string   `json:"description" validate:"max=5000"`
	Address     string   `json:"address" validate:"max=300"`
	City        string   `json:"city" validate:"required,max=120"`
	Phone       string   `json:"phone" validate:"max=30"`
	Website     string   `json:"website" validate:"omitempty,url"`
	Photos      []string `json:"photos" validate:"dive,url"`
	CreatedBy   int64    `json:"createdBy" validate:"required,gt=0"`
}

func (h *Handlers) createBusiness(w http.ResponseWriter, r *http.Request) {
	var req createBusinessReq
	if !decodeValid(w, r, &req) {
		return
	}
	b, err := h.Dir.Create(r.Context(), domain.BusinessInput{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		Phone:       req.Phone,
		Website:     req.Website,
		Photos:      req.Photos,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type updateBusinessReq struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Category    string   `json:"category" validate:"required,max=80"`
	Description string   `json:"description" validate:"max=5000"`
	Address     string   `json:"address" validate:"max=300"`
	City        string   `json:"city" validate:"required,max=120"`
	Phone       string   `json:"phone" validate:"max=30"`
	Website     string   `json:"website" validate:"omitempty,url"`
	Photos      []string `json:"photos" validate:"dive,url"`
}

func (h *Handlers) updateBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateBusinessReq
	if !decodeValid(w, r, &req) {
		return
	}
	b, err := h.Dir.Update(r.Context(), id, domain.BusinessInput{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		Phone:       req.Phone,
		Website:     req.Website,
		Photos:      req.Photos,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) getBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.Dir.Get(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func (h *Handlers) searchBusinesses(w http.ResponseWriter, r *http.Request) {
	q := domain.BusinessQuery{
		Q:        r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
		City:     r.URL.Query().Get("city"),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}
	if q.Limit > 100 {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be between 1 and 100")
		return
	}
	page, err := h.Dir.Search(r.Context(), q)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) featuredBusinesses(w http.ResponseWriter, r *http.Request) {
	items, err := h.Dir.Featured(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if items == nil {
		items = []domain.Business{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ---- reviews ----

type createReviewReq struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comment  string `json:"comment" validate:"max=2000"`
	PhotoURL string `json:"photoUrl" validate:"omitempty,url"`
}

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createReviewReq
	if !decodeValid(w, r, &req) {
		return
	}
	rv, err := h.Ratings.CreateReview(r.Context(), businessID, req.UserID, req.Rating, req.Comment, req.PhotoURL)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathID(w, r)
	if !ok {
		return
	}
	reviews, err := h.Ratings.ListReviews(r.Context(), businessID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

type updateReviewReq struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comment  string `json:"comment" validate:"max=2000"`
	PhotoURL string `json:"photoUrl" validate:"omitempty,url"`
}

func (h *Handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateReviewReq
	if !decodeValid(w, r, &req) {
		return
	}
	rv, err := h.Ratings.UpdateReview(r.Context(), id, req.Rating, req.Comment, req.PhotoURL)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ratings.DeleteReview(r.Context(), id); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- claims ----

type createClaimReq struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	ProofURL string `json:"proofUrl" validate:"required,url"`
}

func (h *Handlers) createClaim(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createClaimReq
	if !decodeValid(w, r, &req) {
		return
	}
	c, err := h.Claims.Submit(r.Context(), businessID, req.UserID, req.ProofURL)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) listBusinessClaims(w http.ResponseWriter, r *http.Request) {
	businessID, ok := pathID(w, r)
	if !ok {
		return
	}
	claims, err := h.Claims.ForBusiness(r.Context(), businessID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if claims == nil {
		claims = []domain.Claim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *Handlers) listClaims(w http.ResponseWriter, r *http.Request) {
	q := domain.ClaimQuery{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := domain.ClaimStatus(raw)
		if st != domain.ClaimPending && !domain.ValidOutcome(st) {
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be pending, approved or rejected")
			return
		}
		q.Status = &st
	}
	claims, err := h.Claims.List(r.Context(), q)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if claims == nil {
		claims = []domain.Claim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

type decideClaimReq struct {
	Outcome string `json:"outcome" validate:"required,oneof=approved rejected"`
}

func (h *Handlers) decideClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req decideClaimReq
	if !decodeValid(w, r, &req) {
		return
	}
	c, err := h.Claims.Decide(r.Context(), id, domain.ClaimStatus(req.Outcome))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
