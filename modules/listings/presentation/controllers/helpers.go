package controllers

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/menusam/listing-moderation/modules/listings/services"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/httpapi"
)

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := composables.UseRequestID(r.Context())
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.Status >= http.StatusInternalServerError {
			composables.UseLogger(r.Context()).WithError(err).Error("moderation request failed")
		}
		httpapi.WriteAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	composables.UseLogger(r.Context()).WithError(err).Error("unexpected moderation error")
	httpapi.WriteAPIError(w, http.StatusInternalServerError, requestID, "INTERNAL", "internal error")
}

// pathUUIDs parses the named route variables, writing a 400 and returning false on the first malformed one.
func pathUUIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]uuid.UUID, bool) {
	vars := mux.Vars(r)
	out := make([]uuid.UUID, len(names))
	for i, name := range names {
		id, err := uuid.Parse(vars[name])
		if err != nil {
			httpapi.WriteAPIError(w, http.StatusBadRequest, composables.UseRequestID(r.Context()), "INVALID_ID", name+" must be a UUID")
			return nil, false
		}
		out[i] = id
	}
	return out, true
}

// decodeBody decodes and validates a request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	requestID := composables.UseRequestID(r.Context())
	if err := httpapi.DecodeJSON(r, dst, allowEmpty); err != nil {
		httpapi.WriteAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", err.Error())
		return false
	}
	if n, ok := dst.(interface{ Normalize() }); ok {
		n.Normalize()
	}
	return validate(w, r, dst)
}

func validate(w http.ResponseWriter, r *http.Request, v any) bool {
	err := validation.Struct(v)
	if err == nil {
		return true
	}
	message := err.Error()
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		message = fieldMessage(verrs[0])
	}
	httpapi.WriteAPIError(w, http.StatusBadRequest, composables.UseRequestID(r.Context()), "VALIDATION_ERROR", message)
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "gte":
		return fe.Field() + " must not be negative"
	default:
		return fe.Field() + " is invalid"
	}
}
