package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPagedServer(t *testing.T, perPage int, profiles []Profile, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		lastPage := (len(profiles) + perPage - 1) / perPage
		start := (page - 1) * perPage
		end := min(start+perPage, len(profiles))
		var data []Profile
		if start < len(profiles) {
			data = profiles[start:end]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": data,
			"meta": map[string]int{"current_page": page, "last_page": lastPage},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sampleProfiles(n int) []Profile {
	out := make([]Profile, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Profile{
			ID:        uint(i),
			FirstName: "User",
			LastName:  strconv.Itoa(i),
			Email:     "user" + strconv.Itoa(i) + "@example.com",
		})
	}
	return out
}

func TestHTTPSource_FetchesAllPages(t *testing.T) {
	var hits atomic.Int32
	srv := newPagedServer(t, 2, sampleProfiles(5), &hits)

	dir := New(NewHTTPSource(srv.URL, "secret", 2, time.Second), time.Minute)
	all := dir.GetAll(context.Background())

	assert.Len(t, all, 5)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "User 4", all[4].FullName())
}

func TestDirectory_ReusesSnapshotWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := newPagedServer(t, 10, sampleProfiles(3), &hits)
	dir := New(NewHTTPSource(srv.URL, "secret", 10, time.Second), time.Minute)

	p, ok := dir.GetByID(context.Background(), 2)
	require.True(t, ok)
	assert.Equal(t, "user2@example.com", p.Email)

	_, ok = dir.GetByID(context.Background(), 42)
	assert.False(t, ok)
	assert.Equal(t, int32(1), hits.Load())

	dir.Invalidate(context.Background())
	dir.GetAll(context.Background())
	assert.Equal(t, int32(2), hits.Load())
}

type flakySource struct {
	mu       sync.Mutex
	fail     bool
	calls    int
	profiles []Profile
}

func (s *flakySource) FetchPage(_ context.Context, _ int) ([]Profile, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, 0, errors.New("connection refused")
	}
	return s.profiles, 1, nil
}

func TestDirectory_ServesLastSnapshotOnFailure(t *testing.T) {
	src := &flakySource{profiles: sampleProfiles(2)}
	dir := New(src, 10*time.Millisecond)

	require.Len(t, dir.GetAll(context.Background()), 2)

	src.mu.Lock()
	src.fail = true
	src.mu.Unlock()
	time.Sleep(20 * time.Millisecond)

	all := dir.GetAll(context.Background())
	assert.Len(t, all, 2)
	_, ok := dir.GetByID(context.Background(), 1)
	assert.True(t, ok)
}

func TestDirectory_EmptyWhenRemoteNeverAnswered(t *testing.T) {
	dir := New(&flakySource{fail: true}, time.Minute)

	assert.Empty(t, dir.GetAll(context.Background()))
	_, ok := dir.GetByID(context.Background(), 1)
	assert.False(t, ok)
}

func TestDirectory_OutageFetchesOncePerWindow(t *testing.T) {
	src := &flakySource{fail: true}
	dir := New(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		_, ok := dir.GetByID(ctx, uint(i))
		assert.False(t, ok)
	}
	src.mu.Lock()
	assert.Equal(t, 1, src.calls)
	src.fail = false
	src.profiles = sampleProfiles(3)
	src.mu.Unlock()

	dir.Invalidate(ctx)
	assert.Len(t, dir.GetAll(ctx), 3)
	src.mu.Lock()
	assert.Equal(t, 2, src.calls)
	src.mu.Unlock()
}

func TestHTTPSource_RejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := NewHTTPSource(srv.URL, "", 0, 0).FetchPage(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestProfile_MarshalIncludesFullName(t *testing.T) {
	b, err := json.Marshal(Profile{ID: 1, FirstName: "Ada", LastName: "Obi", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"first_name":"Ada","last_name":"Obi","email":"ada@example.com","full_name":"Ada Obi"}`, string(b))
}
