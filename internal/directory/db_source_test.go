package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"secmaster/internal/models"
	"secmaster/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBSource_PagesThroughUsers(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, db.Create(&models.User{UserFields: models.UserFields{
			FirstName: models.Ptr(fmt.Sprintf("User%d", i)),
			LastName:  models.Ptr("Test"),
			Email:     models.Ptr(fmt.Sprintf("user%d@example.com", i)),
			Role:      models.Ptr(models.RoleInputter),
		}}).Error)
	}

	src := NewDBSource(db, 2)
	profiles, lastPage, err := src.FetchPage(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, lastPage)
	require.Len(t, profiles, 1)
	assert.Equal(t, "User5 Test", profiles[0].FullName())

	dir := New(src, time.Minute)
	all := dir.GetAll(context.Background())
	assert.Len(t, all, 5)
}
