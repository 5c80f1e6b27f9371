package establishment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	t.Parallel()

	f, err := ParseField(" sub_category ")
	require.NoError(t, err)
	require.Equal(t, FieldSubCategory, f)

	_, err = ParseField("owner_id")
	var unknown *UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "owner_id", unknown.Name)

	_, err = ParseField("verified")
	require.Error(t, err)
}

func TestFields_StableAndComplete(t *testing.T) {
	t.Parallel()

	all := Fields()
	require.Len(t, all, 24)
	require.Equal(t, all, Fields())
	for _, f := range all {
		require.True(t, f.Valid())
		require.NotZero(t, f.Kind())
	}
}

func TestField_ValidateValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		field Field
		raw   string
		ok    bool
	}{
		{FieldName, `"Chez Marie"`, true},
		{FieldName, `""`, false},
		{FieldName, `null`, false},
		{FieldCity, `null`, true},
		{FieldCity, `42`, false},
		{FieldTags, `["vegan","brunch"]`, true},
		{FieldTags, `"vegan"`, false},
		{FieldLat, `48.85`, true},
		{FieldLat, `91`, false},
		{FieldLng, `-181`, false},
		{FieldLng, `"2.35"`, false},
		{FieldHours, `{"mon":"9-18"}`, true},
		{FieldHours, `["9-18"]`, false},
		{FieldExtra, `{not json`, false},
	}
	for _, tc := range cases {
		err := tc.field.ValidateValue(json.RawMessage(tc.raw))
		if tc.ok {
			require.NoError(t, err, "%s=%s", tc.field, tc.raw)
			continue
		}
		var invalid *InvalidValueError
		require.ErrorAs(t, err, &invalid, "%s=%s", tc.field, tc.raw)
	}
}
