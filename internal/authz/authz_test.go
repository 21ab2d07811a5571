package authz

import (
	"context"
	"testing"

	"secmaster/internal/models"
	"secmaster/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolePredicate(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	admin := &models.User{UserFields: models.UserFields{Email: models.Ptr("root@example.com"), Role: models.Ptr(models.RoleSuperAdmin)}}
	inputter := &models.User{UserFields: models.UserFields{Email: models.Ptr("in@example.com"), Role: models.Ptr(models.RoleInputter)}}
	retired := &models.User{UserFields: models.UserFields{Email: models.Ptr("old@example.com"), Role: models.Ptr(models.RoleSuperAdmin)}}
	require.NoError(t, db.Create(admin).Error)
	require.NoError(t, db.Create(inputter).Error)
	require.NoError(t, db.Create(retired).Error)
	require.NoError(t, db.Delete(retired).Error)

	p := NewRolePredicate(db, "")
	assert.Equal(t, models.RoleSuperAdmin, p.Role())

	tests := []struct {
		name  string
		actor uint
		want  bool
	}{
		{"super admin", admin.ID, true},
		{"inputter", inputter.ID, false},
		{"soft-deleted admin", retired.ID, false},
		{"unknown", 9999, false},
		{"anonymous", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.CanBypassApproval(context.Background(), tt.actor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	ok, err := p.HasAnyRole(context.Background(), inputter.ID, models.RoleAuthoriser, models.RoleInputter)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPredicateFunc(t *testing.T) {
	p := PredicateFunc(func(_ context.Context, id uint) (bool, error) { return id == 1, nil })
	ok, _ := p.CanBypassApproval(context.Background(), 1)
	assert.True(t, ok)
}
