package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"secmaster/internal/calc"
	"secmaster/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Kind describes one governed record type to the generic engine.
type Kind[F any] struct {
	// Name is the machine name used in metrics, notifications and routes.
	Name string
	// Label is the display name used in messages.
	Label string
	// Derive fills calculated fields. It runs once, when a snapshot is taken.
	Derive func(f *F, now time.Time)
	// Identify keeps the fields that identify a record in a delete snapshot.
	Identify func(f F) F
	// CheckDuplicate rejects a snapshot colliding with another record.
	// targetID is nil for creates.
	CheckDuplicate func(ctx context.Context, tx *gorm.DB, f *F, targetID *uint) error
}

// Kind names.
const (
	KindSecurity       = "security"
	KindAuctionResult  = "auction_result"
	KindMarketCategory = "market_category"
	KindProductType    = "product_type"
	KindSecurityType   = "security_type"
	KindUser           = "user"
)

// Concrete engines.
type (
	Securities       = Workflow[models.SecurityFields, models.Security, models.PendingSecurity, *models.Security, *models.PendingSecurity]
	AuctionResults   = Workflow[models.AuctionResultFields, models.AuctionResult, models.PendingAuctionResult, *models.AuctionResult, *models.PendingAuctionResult]
	MarketCategories = Workflow[models.MarketCategoryFields, models.MarketCategory, models.PendingMarketCategory, *models.MarketCategory, *models.PendingMarketCategory]
	ProductTypes     = Workflow[models.ProductTypeFields, models.ProductType, models.PendingProductType, *models.ProductType, *models.PendingProductType]
	SecurityTypes    = Workflow[models.SecurityTypeFields, models.SecurityType, models.PendingSecurityType, *models.SecurityType, *models.PendingSecurityType]
	Users            = Workflow[models.UserFields, models.User, models.PendingUser, *models.User, *models.PendingUser]
)

func NewSecurities(db *gorm.DB, notify *Dispatcher) *Securities {
	return New[models.SecurityFields, models.Security, models.PendingSecurity](db, SecurityKind(), notify)
}

func NewAuctionResults(db *gorm.DB, notify *Dispatcher) *AuctionResults {
	return New[models.AuctionResultFields, models.AuctionResult, models.PendingAuctionResult](db, AuctionResultKind(), notify)
}

func NewMarketCategories(db *gorm.DB, notify *Dispatcher) *MarketCategories {
	return New[models.MarketCategoryFields, models.MarketCategory, models.PendingMarketCategory](db, MarketCategoryKind(), notify)
}

func NewProductTypes(db *gorm.DB, notify *Dispatcher) *ProductTypes {
	return New[models.ProductTypeFields, models.ProductType, models.PendingProductType](db, ProductTypeKind(), notify)
}

func NewSecurityTypes(db *gorm.DB, notify *Dispatcher) *SecurityTypes {
	return New[models.SecurityTypeFields, models.SecurityType, models.PendingSecurityType](db, SecurityTypeKind(), notify)
}

func NewUsers(db *gorm.DB, notify *Dispatcher) *Users {
	return New[models.UserFields, models.User, models.PendingUser](db, UserKind(), notify)
}

// SecurityKind derives tenor, time to maturity, day-count basis, effective
// coupon and final rating, and refuses duplicate ISINs and names.
func SecurityKind() Kind[models.SecurityFields] {
	return Kind[models.SecurityFields]{
		Name:  KindSecurity,
		Label: "Security",
		Derive: func(f *models.SecurityFields, now time.Time) {
			if f.IssueDate != nil && f.MaturityDate != nil {
				f.Tenor = models.Ptr(calc.TenorYears(f.IssueDate.Time, f.MaturityDate.Time))
			}
			if f.MaturityDate != nil {
				f.TTM = models.Ptr(calc.TimeToMaturity(now, f.MaturityDate.Time))
			}
			f.DayCountBasis = models.Ptr(calc.DayCountBasis(deref(f.DayCountConvention)))
			f.EffectiveCoupon = calc.EffectiveCoupon(calc.CouponInputs{
				CouponType: deref(f.CouponType),
				Coupon:     f.Coupon,
				FRM:        f.FRM,
				FRBV:       f.FRBV,
				Floor:      f.CouponFloor,
				Cap:        f.CouponCap,
			})
			f.FinalRating = calc.FinalRating(f.Rating1, f.RatingAgency1, f.Rating2, f.RatingAgency2)
		},
		Identify: func(f models.SecurityFields) models.SecurityFields {
			return models.SecurityFields{SecurityName: f.SecurityName, ISIN: f.ISIN}
		},
		CheckDuplicate: securityDuplicates,
	}
}

func securityDuplicates(ctx context.Context, tx *gorm.DB, f *models.SecurityFields, targetID *uint) error {
	isin := strings.TrimSpace(deref(f.ISIN))
	name := strings.TrimSpace(deref(f.SecurityName))

	if isin != "" || name != "" {
		var conds []string
		var args []any
		if isin != "" {
			conds = append(conds, "isin = ?")
			args = append(args, isin)
		}
		if name != "" {
			conds = append(conds, "security_name = ?")
			args = append(args, name)
		}
		var pending int64
		err := tx.WithContext(ctx).Model(&models.PendingSecurity{}).
			Where("approval_status = ? AND request_type = ?", models.PendingStatusPending, models.RequestCreate).
			Where(strings.Join(conds, " OR "), args...).
			Count(&pending).Error
		if err != nil {
			return models.NewInternalError(err)
		}
		if pending == 0 {
			pending, err = pendingActionCreates(ctx, tx, isin, name)
			if err != nil {
				return err
			}
		}
		if pending > 0 {
			return models.NewDuplicateEntryError(
				fmt.Sprintf("A security named %q or with ISIN %q is already awaiting approval", name, isin))
		}
	}

	if isin == "" {
		return nil
	}
	q := tx.WithContext(ctx).Model(&models.Security{}).Where("isin = ?", isin)
	if targetID != nil {
		q = q.Where("id <> ?", *targetID)
	}
	var live int64
	if err := q.Count(&live).Error; err != nil {
		return models.NewInternalError(err)
	}
	if live > 0 {
		return models.NewDuplicateEntryError(fmt.Sprintf("A security with ISIN %q already exists", isin))
	}
	return nil
}

// pendingActionCreates counts open security creates in the JSON pipeline
// whose payload carries isin or name.
func pendingActionCreates(ctx context.Context, tx *gorm.DB, isin, name string) (int64, error) {
	var match []clause.Expression
	if isin != "" {
		match = append(match, datatypes.JSONQuery("data").Equals(isin, "isin"))
	}
	if name != "" {
		match = append(match, datatypes.JSONQuery("data").Equals(name, "security_name"))
	}
	var count int64
	err := tx.WithContext(ctx).Model(&models.PendingAction{}).
		Where("status = ? AND action_type = ? AND model_type = ?", models.PendingStatusPending, models.RequestCreate, models.ModelTypeSecurity).
		Where(clause.Or(match...)).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// AuctionResultKind derives the auction weekday and its ratios.
func AuctionResultKind() Kind[models.AuctionResultFields] {
	return Kind[models.AuctionResultFields]{
		Name:  KindAuctionResult,
		Label: "Auction result",
		Derive: func(f *models.AuctionResultFields, _ time.Time) {
			if f.AuctionDate != nil {
				f.DayOfWeek = models.Ptr(calc.DayOfWeek(f.AuctionDate.Time))
			}
			f.BidCoverRatio, f.SubscriptionLevel = calc.AuctionRatios(f.AmountSubscribed, f.AmountOffered, f.TotalAmountSold)
		},
		Identify: func(f models.AuctionResultFields) models.AuctionResultFields {
			return models.AuctionResultFields{AuctionNumber: f.AuctionNumber, AuctionDate: f.AuctionDate, ISIN: f.ISIN}
		},
	}
}

func MarketCategoryKind() Kind[models.MarketCategoryFields] {
	return Kind[models.MarketCategoryFields]{
		Name:  KindMarketCategory,
		Label: "Market category",
		Identify: func(f models.MarketCategoryFields) models.MarketCategoryFields {
			return models.MarketCategoryFields{Name: f.Name, Code: f.Code}
		},
	}
}

func ProductTypeKind() Kind[models.ProductTypeFields] {
	return Kind[models.ProductTypeFields]{
		Name:  KindProductType,
		Label: "Product type",
		Identify: func(f models.ProductTypeFields) models.ProductTypeFields {
			return models.ProductTypeFields{Name: f.Name, Code: f.Code}
		},
	}
}

func SecurityTypeKind() Kind[models.SecurityTypeFields] {
	return Kind[models.SecurityTypeFields]{
		Name:  KindSecurityType,
		Label: "Security type",
		Identify: func(f models.SecurityTypeFields) models.SecurityTypeFields {
			return models.SecurityTypeFields{Name: f.Name, Code: f.Code}
		},
	}
}

// UserKind never copies the password hash into a delete snapshot.
func UserKind() Kind[models.UserFields] {
	return Kind[models.UserFields]{
		Name:  KindUser,
		Label: "User",
		Identify: func(f models.UserFields) models.UserFields {
			return models.UserFields{FirstName: f.FirstName, LastName: f.LastName, Email: f.Email}
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
