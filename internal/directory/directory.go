package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"secmaster/internal/cache"
	"secmaster/internal/observability"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotKey       = "profiles"
	defaultTTL        = 5 * time.Minute
	defaultFetchLimit = 4
	refreshTimeout    = 30 * time.Second
	failureTTL        = 30 * time.Second
)

// Directory caches the remote user directory. Lookups never fail: when the
// remote is unreachable the last successful snapshot (possibly empty) is served
// and the remote is not asked again until the retry window passes.
type Directory struct {
	source Source
	ttl    time.Duration
	local  *gocache.Cache
	group  singleflight.Group

	mu   sync.RWMutex
	last map[uint]Profile
}

// New returns a Directory reading from source and caching for ttl.
func New(source Source, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Directory{
		source: source,
		ttl:    ttl,
		local:  gocache.New(ttl, 2*ttl),
		last:   map[uint]Profile{},
	}
}

// GetByID returns the profile of userID, if the directory knows it.
func (d *Directory) GetByID(ctx context.Context, userID uint) (Profile, bool) {
	p, ok := d.GetAll(ctx)[userID]
	return p, ok
}

// GetAll returns every known profile keyed by id. The map is shared and must
// not be modified.
func (d *Directory) GetAll(ctx context.Context) map[uint]Profile {
	if v, ok := d.local.Get(snapshotKey); ok {
		return v.(map[uint]Profile)
	}
	v, _, _ := d.group.Do(snapshotKey, func() (interface{}, error) {
		return d.refresh(ctx), nil
	})
	return v.(map[uint]Profile)
}

// Invalidate drops the cached snapshot so the next lookup refetches.
func (d *Directory) Invalidate(ctx context.Context) {
	d.local.Delete(snapshotKey)
	cache.Invalidate(ctx, cache.DirectoryKey)
}

func (d *Directory) refresh(ctx context.Context) map[uint]Profile {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	var profiles []Profile
	err := cache.Aside(ctx, cache.DirectoryKey, &profiles, d.ttl, func() error {
		fetched, err := d.fetchAll(ctx)
		if err != nil {
			return err
		}
		profiles = fetched
		return nil
	})
	if err != nil {
		observability.DirectoryRefreshes.WithLabelValues("failed").Inc()
		observability.Logger.WarnContext(ctx, "user directory refresh failed, serving last snapshot",
			slog.String("error", err.Error()))
		d.mu.RLock()
		last := d.last
		d.mu.RUnlock()
		d.local.Set(snapshotKey, last, min(failureTTL, d.ttl))
		return last
	}

	snapshot := make(map[uint]Profile, len(profiles))
	for _, p := range profiles {
		snapshot[p.ID] = p
	}
	d.local.Set(snapshotKey, snapshot, gocache.DefaultExpiration)

	d.mu.Lock()
	d.last = snapshot
	d.mu.Unlock()

	observability.DirectoryRefreshes.WithLabelValues("ok").Inc()
	observability.DirectorySize.Set(float64(len(snapshot)))
	return snapshot
}

// fetchAll reads page 1 to learn the page count, then the remaining pages concurrently.
func (d *Directory) fetchAll(ctx context.Context) ([]Profile, error) {
	first, lastPage, err := d.source.FetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}
	if lastPage <= 1 {
		return first, nil
	}

	pages := make([][]Profile, lastPage)
	pages[0] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultFetchLimit)
	for page := 2; page <= lastPage; page++ {
		g.Go(func() error {
			profiles, _, err := d.source.FetchPage(gctx, page)
			if err != nil {
				return err
			}
			pages[page-1] = profiles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Profile
	for _, p := range pages {
		all = append(all, p...)
	}
	return all, nil
}
