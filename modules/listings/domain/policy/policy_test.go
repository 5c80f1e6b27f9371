package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
)

func TestAllows(t *testing.T) {
	t.Parallel()

	verified := establishment.Protection{Verified: true}
	open := establishment.Protection{}

	for _, f := range establishment.Fields() {
		require.True(t, Allows(open, f), "unverified listing must allow %s", f)
	}
	require.False(t, Allows(verified, establishment.FieldCategory))
	require.False(t, Allows(verified, establishment.FieldSubCategory))
	require.True(t, Allows(verified, establishment.FieldName))
	require.True(t, Allows(verified, establishment.FieldHours))
	require.False(t, Allows(open, establishment.Field("owner_id")))
}

func TestCheck_ReturnsViolation(t *testing.T) {
	t.Parallel()

	err := Check(establishment.Protection{Verified: true}, establishment.FieldCategory)
	var v *Violation
	require.ErrorAs(t, err, &v)
	require.Equal(t, establishment.FieldCategory, v.Field)
	require.Equal(t, "Category cannot be changed on a verified listing", err.Error())

	require.NoError(t, Check(establishment.Protection{Verified: true}, establishment.FieldTags))
}

func TestAllows_IsDeterministic(t *testing.T) {
	t.Parallel()

	for _, verified := range []bool{false, true} {
		p := establishment.Protection{Verified: verified}
		for _, f := range establishment.Fields() {
			first := Allows(p, f)
			for i := 0; i < 3; i++ {
				require.Equal(t, first, Allows(p, f))
				require.Equal(t, first, Check(p, f) == nil)
			}
		}
	}
}

func TestLocked(t *testing.T) {
	t.Parallel()

	require.Empty(t, Locked(establishment.Protection{}))
	require.ElementsMatch(t,
		[]establishment.Field{establishment.FieldCategory, establishment.FieldSubCategory},
		Locked(establishment.Protection{Verified: true}),
	)
}
