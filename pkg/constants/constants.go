package constants

import (
	"github.com/go-playground/validator/v10"
)

type contextKey string

const (
	AppKey       contextKey = "app"
	TxKey        contextKey = "tx"
	PoolKey      contextKey = "pool"
	LoggerKey    contextKey = "logger"
	ParamsKey    contextKey = "params"
	UserKey      contextKey = "user"
	RequestIDKey contextKey = "request_id"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
