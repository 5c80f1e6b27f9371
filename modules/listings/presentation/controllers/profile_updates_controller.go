package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/services"
	"github.com/menusam/listing-moderation/pkg/application"
	"github.com/menusam/listing-moderation/pkg/httpapi"
)

// DecisionService is the part of services.DecisionService the controller needs.
type DecisionService interface {
	ListPending(ctx context.Context, establishmentID uuid.UUID) ([]*draft.Draft, error)
	Accept(ctx context.Context, ref services.ChangeRef) (services.DecisionResult, error)
	Reject(ctx context.Context, ref services.ChangeRef, reason string) (services.DecisionResult, error)
	AcceptAll(ctx context.Context, establishmentID, draftID uuid.UUID) (services.AcceptAllResult, error)
	RejectAll(ctx context.Context, establishmentID, draftID uuid.UUID, reason string) (services.DecisionResult, error)
}

// ProfileUpdatesController exposes per-field moderation of listing profile drafts.
type ProfileUpdatesController struct {
	decisions DecisionService
	guard     []mux.MiddlewareFunc
}

func NewProfileUpdatesController(decisions DecisionService, guard ...mux.MiddlewareFunc) application.Controller {
	return &ProfileUpdatesController{decisions: decisions, guard: guard}
}

func (c *ProfileUpdatesController) Key() string {
	return "/establishments"
}

func (c *ProfileUpdatesController) Register(r *mux.Router) {
	router := r.PathPrefix("/establishments/{id}/profile-updates").Subrouter()
	router.Use(c.guard...)

	router.HandleFunc("/pending", instrumentAPI("profile_updates.pending", c.ListPending)).Methods(http.MethodGet)
	router.HandleFunc("/{draftId}/changes/{changeId}/accept", instrumentAPI("profile_updates.accept", c.Accept)).Methods(http.MethodPost)
	router.HandleFunc("/{draftId}/changes/{changeId}/reject", instrumentAPI("profile_updates.reject", c.Reject)).Methods(http.MethodPost)
	router.HandleFunc("/{draftId}/accept-all", instrumentAPI("profile_updates.accept_all", c.AcceptAll)).Methods(http.MethodPost)
	router.HandleFunc("/{draftId}/reject-all", instrumentAPI("profile_updates.reject_all", c.RejectAll)).Methods(http.MethodPost)
}

type pendingDraftsResponse struct {
	Items []*draft.Draft `json:"items"`
}

func (c *ProfileUpdatesController) ListPending(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "id")
	if !ok {
		return
	}
	drafts, err := c.decisions.ListPending(r.Context(), ids[0])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []*draft.Draft{}
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, pendingDraftsResponse{Items: drafts})
}

func (c *ProfileUpdatesController) Accept(w http.ResponseWriter, r *http.Request) {
	ref, ok := changeRef(w, r)
	if !ok {
		return
	}
	res, err := c.decisions.Accept(r.Context(), ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}

func (c *ProfileUpdatesController) Reject(w http.ResponseWriter, r *http.Request) {
	ref, ok := changeRef(w, r)
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeBody(w, r, &body, false) {
		return
	}
	res, err := c.decisions.Reject(r.Context(), ref, body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}

func (c *ProfileUpdatesController) AcceptAll(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "id", "draftId")
	if !ok {
		return
	}
	res, err := c.decisions.AcceptAll(r.Context(), ids[0], ids[1])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}

func (c *ProfileUpdatesController) RejectAll(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "id", "draftId")
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeBody(w, r, &body, true) {
		return
	}
	res, err := c.decisions.RejectAll(r.Context(), ids[0], ids[1], body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, res)
}

func changeRef(w http.ResponseWriter, r *http.Request) (services.ChangeRef, bool) {
	ids, ok := pathUUIDs(w, r, "id", "draftId", "changeId")
	if !ok {
		return services.ChangeRef{}, false
	}
	return services.ChangeRef{EstablishmentID: ids[0], DraftID: ids[1], ChangeID: ids[2]}, true
}
