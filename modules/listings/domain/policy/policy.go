// Package policy decides which profile fields may still be edited through moderation.
package policy

import (
	"fmt"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
)

// identityFields become immutable once a listing is verified.
var identityFields = map[establishment.Field]struct{}{
	establishment.FieldCategory:    {},
	establishment.FieldSubCategory: {},
}

// Violation is returned when a field is locked on the target listing.
type Violation struct {
	Field establishment.Field
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s cannot be changed on a verified listing", v.Field.Label())
}

// Allows reports whether field may be applied to a listing in the given state.
func Allows(p establishment.Protection, field establishment.Field) bool {
	if !field.Valid() {
		return false
	}
	if !p.Verified {
		return true
	}
	_, locked := identityFields[field]
	return !locked
}

// Check is Allows returning a *Violation for denied fields.
func Check(p establishment.Protection, field establishment.Field) error {
	if Allows(p, field) {
		return nil
	}
	return &Violation{Field: field}
}

// Locked lists the fields denied for p.
func Locked(p establishment.Protection) []establishment.Field {
	var out []establishment.Field
	for _, f := range establishment.Fields() {
		if !Allows(p, f) {
			out = append(out, f)
		}
	}
	return out
}
