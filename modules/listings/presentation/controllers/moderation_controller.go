package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
	"github.com/menusam/listing-moderation/modules/listings/services"
	"github.com/menusam/listing-moderation/pkg/application"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/httpapi"
)

// LegacyService is the part of services.LegacyDraftApplier the controller needs.
type LegacyService interface {
	List(ctx context.Context, params moderation.FindParams) ([]*moderation.Item, int, error)
	Approve(ctx context.Context, itemID uuid.UUID) (services.DecisionResult, error)
	Reject(ctx context.Context, itemID uuid.UUID, reason string) (services.DecisionResult, error)
}

type Paging struct {
	Default int
	Max     int
}

// ModerationController serves the generic moderation queue. Only listing profile updates can be decided here.
type ModerationController struct {
	legacy LegacyService
	paging Paging
	guard  []mux.MiddlewareFunc
}

func NewModerationController(legacy LegacyService, paging Paging, guard ...mux.MiddlewareFunc) application.Controller {
	if paging.Default <= 0 {
		paging.Default = 25
	}
	if paging.Max < paging.Default {
		paging.Max = paging.Default
	}
	return &ModerationController{legacy: legacy, paging: paging, guard: guard}
}

func (c *ModerationController) Key() string {
	return "/moderation"
}

func (c *ModerationController) Register(r *mux.Router) {
	router := r.PathPrefix("/moderation").Subrouter()
	router.Use(c.guard...)

	router.HandleFunc("", instrumentAPI("moderation.list", c.List)).Methods(http.MethodGet)
	router.HandleFunc("/{id}/approve", instrumentAPI("moderation.approve", c.Approve)).Methods(http.MethodPost)
	router.HandleFunc("/{id}/reject", instrumentAPI("moderation.reject", c.Reject)).Methods(http.MethodPost)
}

type moderationListResponse struct {
	Items []*moderation.Item `json:"items"`
	Total int                `json:"total"`
}

func (c *ModerationController) List(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	q := r.URL.Query()
	query := moderationListQuery{Status: q.Get("status"), Limit: c.paging.Default}
	for key, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpapi.WriteAPIError(w, http.StatusBadRequest, requestID, "INVALID_QUERY", key+" must be an integer")
			return
		}
		*dst = v
	}
	if !validate(w, r, &query) {
		return
	}
	if query.Limit == 0 || query.Limit > c.paging.Max {
		query.Limit = c.paging.Max
	}

	items, total, err := c.legacy.List(r.Context(), moderation.FindParams{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*moderation.Item{}
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, moderationListResponse{Items: items, Total: total})
}

func (c *ModerationController) Approve(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "id")
	if !ok {
		return
	}
	res, err := c.legacy.Approve(r.Context(), ids[0])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}

func (c *ModerationController) Reject(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "id")
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	res, err := c.legacy.Reject(r.Context(), ids[0], body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}
