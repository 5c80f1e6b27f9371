package controllers

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validation = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (d *reasonRequest) Normalize() {
	d.Reason = strings.TrimSpace(d.Reason)
}

type moderationListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending approved rejected partially_accepted"`
	Limit  int    `query:"limit" validate:"gte=0"`
	Offset int    `query:"offset" validate:"gte=0"`
}
