package composables

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menusam/listing-moderation/pkg/constants"
)

var (
	ErrNoUser = errors.New("user not found in context")
)

type Params struct {
	IP        string
	UserAgent string
	RequestID string
	Request   *http.Request
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// UseRequestID returns the request id or an empty string outside of a request.
func UseRequestID(ctx context.Context) string {
	params, ok := UseParams(ctx)
	if !ok {
		return ""
	}
	return params.RequestID
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request-scoped logger, or a standard logger entry when none is attached.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry)
	if !ok || logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return logger
}

// User is the authenticated caller. Only moderators reach the moderation API.
type User struct {
	ID   uuid.UUID
	Role string
}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, constants.UserKey, u)
}

func UseUser(ctx context.Context) (*User, error) {
	u, ok := ctx.Value(constants.UserKey).(*User)
	if !ok || u == nil {
		return nil, ErrNoUser
	}
	return u, nil
}
