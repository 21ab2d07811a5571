package seed

import (
	"context"
	"fmt"
	"log/slog"

	"secmaster/internal/models"
	"secmaster/internal/observability"
	"secmaster/internal/service"

	"gorm.io/gorm"
)

// Options configures a demo seeding run.
type Options struct {
	Inputters   int
	Authorisers int
	Securities  int
	Auctions    int
	// Proposals is the number of open security proposals left for review.
	Proposals  int
	Clean      bool
	SkipBcrypt bool
	RandSeed   int64
}

// Summary counts what a run created.
type Summary struct {
	Reference  ReferenceStats
	Users      int
	Securities int
	Auctions   int
	Proposals  int
}

// Demo fills the catalogue with reference data and fake records, all
// stamped with actorID, then leaves open proposals from inputters to
// authorisers.
func Demo(ctx context.Context, db *gorm.DB, actorID uint, opts Options) (*Summary, error) {
	log := observability.Logger
	if opts.Clean {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("clear catalogue: %w", err)
		}
		log.Info("catalogue cleared")
	}

	sum := &Summary{}
	ref, err := Reference(ctx, db, actorID)
	if err != nil {
		return nil, err
	}
	sum.Reference = ref
	log.Info("reference data ready",
		slog.Int("market_categories", ref.MarketCategories),
		slog.Int("product_types", ref.ProductTypes),
		slog.Int("security_types", ref.SecurityTypes))

	f := NewFactory(opts.RandSeed, opts.SkipBcrypt)
	engines := service.NewEngines(db, nil)

	inputters, err := createUsers(ctx, engines, f, actorID, models.RoleInputter, opts.Inputters)
	if err != nil {
		return nil, err
	}
	authorisers, err := createUsers(ctx, engines, f, actorID, models.RoleAuthoriser, opts.Authorisers)
	if err != nil {
		return nil, err
	}
	sum.Users = len(inputters) + len(authorisers)

	var typeIDs []uint
	if err := db.WithContext(ctx).Model(&models.SecurityType{}).Order("id").Pluck("id", &typeIDs).Error; err != nil {
		return nil, fmt.Errorf("list security types: %w", err)
	}

	securities := make([]*models.Security, 0, opts.Securities)
	for i := 0; i < opts.Securities; i++ {
		var typeID *uint
		if len(typeIDs) > 0 {
			typeID = models.Ptr(typeIDs[i%len(typeIDs)])
		}
		sec, err := engines.Securities.CreateDirect(ctx, f.Security(typeID), actorID)
		if models.HasCode(err, models.CodeDuplicateEntry) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create security: %w", err)
		}
		securities = append(securities, sec)
	}
	sum.Securities = len(securities)

	for i := 0; i < opts.Auctions && len(securities) > 0; i++ {
		sec := securities[i%len(securities)]
		fields := f.AuctionResult(*sec.ISIN, sec.MaturityDate)
		fields.SecurityTypeID = sec.SecurityTypeID
		if _, err := engines.AuctionResults.CreateDirect(ctx, fields, actorID); err != nil {
			return nil, fmt.Errorf("create auction result: %w", err)
		}
		sum.Auctions++
	}

	if len(inputters) > 0 && len(authorisers) > 0 {
		for i := 0; i < opts.Proposals; i++ {
			requester := inputters[i%len(inputters)]
			authoriser := authorisers[i%len(authorisers)]
			_, err := engines.Securities.ProposeCreate(ctx, f.Security(nil), requester, authoriser)
			if models.HasCode(err, models.CodeDuplicateEntry) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("propose security: %w", err)
			}
			sum.Proposals++
		}
	}

	log.Info("demo seeding complete",
		slog.Int("users", sum.Users),
		slog.Int("securities", sum.Securities),
		slog.Int("auctions", sum.Auctions),
		slog.Int("proposals", sum.Proposals))
	return sum, nil
}

func createUsers(ctx context.Context, engines service.Engines, f *Factory, actorID uint, role string, n int) ([]uint, error) {
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		fields, err := f.User(role)
		if err != nil {
			return nil, err
		}
		u, err := engines.Users.CreateDirect(ctx, fields, actorID)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", role, err)
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// clearData removes catalogue rows and change requests. Users are kept so
// the acting admin survives.
func clearData(ctx context.Context, db *gorm.DB) error {
	tables := []any{
		&models.PendingAction{},
		&models.PendingAuctionResult{}, &models.AuctionResult{},
		&models.PendingSecurity{}, &models.Security{},
		&models.PendingSecurityType{}, &models.SecurityType{},
		&models.PendingProductType{}, &models.ProductType{},
		&models.PendingMarketCategory{}, &models.MarketCategory{},
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(t).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
