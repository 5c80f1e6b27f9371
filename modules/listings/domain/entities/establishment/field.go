package establishment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Field is a member of the closed set of profile fields a submitter may propose edits to.
type Field string

const (
	FieldName             Field = "name"
	FieldCategory         Field = "category"
	FieldSubCategory      Field = "sub_category"
	FieldSpecialties      Field = "specialties"
	FieldCity             Field = "city"
	FieldPostalCode       Field = "postal_code"
	FieldRegion           Field = "region"
	FieldCountry          Field = "country"
	FieldAddress          Field = "address"
	FieldLat              Field = "lat"
	FieldLng              Field = "lng"
	FieldShortDescription Field = "short_description"
	FieldLongDescription  Field = "long_description"
	FieldPhone            Field = "phone"
	FieldWhatsapp         Field = "whatsapp"
	FieldWebsite          Field = "website"
	FieldSocialLinks      Field = "social_links"
	FieldHours            Field = "hours"
	FieldTags             Field = "tags"
	FieldAmenities        Field = "amenities"
	FieldCoverURL         Field = "cover_url"
	FieldGalleryURLs      Field = "gallery_urls"
	FieldAmbianceTags     Field = "ambiance_tags"
	FieldExtra            Field = "extra"
)

// Kind is the storage shape of a field's value.
type Kind int

const (
	KindText Kind = iota + 1
	KindTextList
	KindNumber
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTextList:
		return "text list"
	case KindNumber:
		return "number"
	case KindJSON:
		return "JSON object"
	default:
		return "unknown"
	}
}

type fieldInfo struct {
	kind     Kind
	label    string
	required bool
}

var fields = map[Field]fieldInfo{
	FieldName:             {kind: KindText, label: "Name", required: true},
	FieldCategory:         {kind: KindText, label: "Category"},
	FieldSubCategory:      {kind: KindText, label: "Sub-category"},
	FieldSpecialties:      {kind: KindTextList, label: "Specialties"},
	FieldCity:             {kind: KindText, label: "City"},
	FieldPostalCode:       {kind: KindText, label: "Postal code"},
	FieldRegion:           {kind: KindText, label: "Region"},
	FieldCountry:          {kind: KindText, label: "Country"},
	FieldAddress:          {kind: KindText, label: "Address"},
	FieldLat:              {kind: KindNumber, label: "Latitude"},
	FieldLng:              {kind: KindNumber, label: "Longitude"},
	FieldShortDescription: {kind: KindText, label: "Short description"},
	FieldLongDescription:  {kind: KindText, label: "Long description"},
	FieldPhone:            {kind: KindText, label: "Phone"},
	FieldWhatsapp:         {kind: KindText, label: "WhatsApp"},
	FieldWebsite:          {kind: KindText, label: "Website"},
	FieldSocialLinks:      {kind: KindJSON, label: "Social links"},
	FieldHours:            {kind: KindJSON, label: "Opening hours"},
	FieldTags:             {kind: KindTextList, label: "Tags"},
	FieldAmenities:        {kind: KindTextList, label: "Amenities"},
	FieldCoverURL:         {kind: KindText, label: "Cover image"},
	FieldGalleryURLs:      {kind: KindTextList, label: "Gallery"},
	FieldAmbianceTags:     {kind: KindTextList, label: "Ambiance"},
	FieldExtra:            {kind: KindJSON, label: "Other details"},
}

// ParseField resolves a raw field name, rejecting anything outside the allow-list.
func ParseField(raw string) (Field, error) {
	f := Field(strings.TrimSpace(raw))
	if _, ok := fields[f]; !ok {
		return "", &UnknownFieldError{Name: raw}
	}
	return f, nil
}

// Fields returns the allow-list in a stable order.
func Fields() []Field {
	out := make([]Field, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f Field) Valid() bool {
	_, ok := fields[f]
	return ok
}

func (f Field) Kind() Kind {
	return fields[f].kind
}

func (f Field) Label() string {
	if s, ok := fields[f]; ok {
		return s.label
	}
	return string(f)
}

// Column is the establishments column backing the field. Fields are named after their columns.
func (f Field) Column() string {
	return string(f)
}

type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

type InvalidValueError struct {
	Field  Field
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field.Label(), e.Reason)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ValidateValue checks that raw has the JSON shape the field's column stores.
func (f Field) ValidateValue(raw json.RawMessage) error {
	s, ok := fields[f]
	if !ok {
		return &UnknownFieldError{Name: string(f)}
	}
	invalid := func(reason string) error { return &InvalidValueError{Field: f, Reason: reason} }

	if isNull(raw) {
		if s.required {
			return invalid("value is required")
		}
		return nil
	}
	if !json.Valid(raw) {
		return invalid("not valid JSON")
	}

	switch s.kind {
	case KindText:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid("expected a string")
		}
		if s.required && strings.TrimSpace(v) == "" {
			return invalid("value is required")
		}
	case KindTextList:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid("expected a list of strings")
		}
	case KindNumber:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid("expected a number")
		}
		if f == FieldLat && math.Abs(v) > 90 {
			return invalid("latitude must be within [-90, 90]")
		}
		if f == FieldLng && math.Abs(v) > 180 {
			return invalid("longitude must be within [-180, 180]")
		}
	case KindJSON:
		var v map[string]any
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid("expected a JSON object")
		}
	}
	return nil
}
