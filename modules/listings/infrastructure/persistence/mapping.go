package persistence

import (
	"encoding/json"
	"sort"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
)

var jsonNull = json.RawMessage("null")

func jsonOrNull(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return jsonNull
	}
	return json.RawMessage(raw)
}

// jsonArg passes JSON to a jsonb column, mapping an empty value to SQL NULL.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func sortFields(fields []establishment.Field) {
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
}
