package controllers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/menusam/listing-moderation/modules/logging/domain/entities/auditlog"
	"github.com/menusam/listing-moderation/modules/logging/services"
	"github.com/menusam/listing-moderation/pkg/application"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/httpapi"
)

type AuditLogsController struct {
	service *services.AuditService
	guard   []mux.MiddlewareFunc
}

func NewAuditLogsController(service *services.AuditService, guard ...mux.MiddlewareFunc) application.Controller {
	return &AuditLogsController{service: service, guard: guard}
}

func (c *AuditLogsController) Key() string {
	return "/audit-logs"
}

func (c *AuditLogsController) Register(r *mux.Router) {
	router := r.PathPrefix("/audit-logs").Subrouter()
	router.Use(c.guard...)
	router.HandleFunc("", c.List).Methods(http.MethodGet)
}

type auditLogsResponse struct {
	Items []*auditlog.AuditLog `json:"items"`
	Total int64                `json:"total"`
}

func (c *AuditLogsController) List(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	q := r.URL.Query()

	params := &auditlog.FindParams{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
	}
	for key, dst := range map[string]*int{"limit": &params.Limit, "offset": &params.Offset} {
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

	logs, total, err := c.service.List(r.Context(), params)
	if err != nil {
		httpapi.WriteAPIError(w, http.StatusBadRequest, requestID, "INVALID_QUERY", err.Error())
		return
	}
	if logs == nil {
		logs = []*auditlog.AuditLog{}
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, auditLogsResponse{Items: logs, Total: total})
}
