package service

import (
	"context"
	"fmt"

	"secmaster/internal/authz"
	"secmaster/internal/models"
	"secmaster/internal/validation"
	"secmaster/internal/workflow"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type (
	SecurityService       = Governance[models.SecurityFields, models.Security, models.PendingSecurity, *models.PendingSecurity]
	AuctionResultService  = Governance[models.AuctionResultFields, models.AuctionResult, models.PendingAuctionResult, *models.PendingAuctionResult]
	MarketCategoryService = Governance[models.MarketCategoryFields, models.MarketCategory, models.PendingMarketCategory, *models.PendingMarketCategory]
	ProductTypeService    = Governance[models.ProductTypeFields, models.ProductType, models.PendingProductType, *models.PendingProductType]
	SecurityTypeService   = Governance[models.SecurityTypeFields, models.SecurityType, models.PendingSecurityType, *models.PendingSecurityType]
	UserService           = Governance[models.UserFields, models.User, models.PendingUser, *models.PendingUser]
)

// Services groups the facade of every governed kind.
type Services struct {
	Securities       *SecurityService
	AuctionResults   *AuctionResultService
	MarketCategories *MarketCategoryService
	ProductTypes     *ProductTypeService
	SecurityTypes    *SecurityTypeService
	Users            *UserService
}

// Engines groups the approval engine of every governed kind.
type Engines struct {
	Securities       *workflow.Securities
	AuctionResults   *workflow.AuctionResults
	MarketCategories *workflow.MarketCategories
	ProductTypes     *workflow.ProductTypes
	SecurityTypes    *workflow.SecurityTypes
	Users            *workflow.Users
}

// NewEngines builds one engine per governed kind over db.
func NewEngines(db *gorm.DB, notify *workflow.Dispatcher) Engines {
	return Engines{
		Securities:       workflow.NewSecurities(db, notify),
		AuctionResults:   workflow.NewAuctionResults(db, notify),
		MarketCategories: workflow.NewMarketCategories(db, notify),
		ProductTypes:     workflow.NewProductTypes(db, notify),
		SecurityTypes:    workflow.NewSecurityTypes(db, notify),
		Users:            workflow.NewUsers(db, notify),
	}
}

// ActionTargets lists the kinds reachable through the pending-action
// pipeline.
func (e Engines) ActionTargets() []workflow.ActionTarget {
	return []workflow.ActionTarget{e.Securities, e.AuctionResults}
}

// Invalidator is implemented by profile resolvers that cache users.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// NewServices builds a facade per engine sharing one bypass predicate. When
// profiles caches users, applied user changes invalidate it.
func NewServices(e Engines, bypass authz.Predicate, profiles workflow.ProfileResolver) *Services {
	userHooks := Hooks[models.UserFields]{Validate: validation.ValidateUser, Prepare: HashPassword}
	if inv, ok := profiles.(Invalidator); ok {
		userHooks.Applied = inv.Invalidate
	}
	return &Services{
		Securities: NewGovernance[models.SecurityFields, models.Security, models.PendingSecurity](
			e.Securities, bypass, profiles, Hooks[models.SecurityFields]{Validate: validation.ValidateSecurity}),
		AuctionResults: NewGovernance[models.AuctionResultFields, models.AuctionResult, models.PendingAuctionResult](
			e.AuctionResults, bypass, profiles, Hooks[models.AuctionResultFields]{Validate: validation.ValidateAuctionResult}),
		MarketCategories: NewGovernance[models.MarketCategoryFields, models.MarketCategory, models.PendingMarketCategory](
			e.MarketCategories, bypass, profiles, Hooks[models.MarketCategoryFields]{
				Validate: func(f *models.MarketCategoryFields, creating bool) error { return validation.ValidateName(f.Name, creating) },
			}),
		ProductTypes: NewGovernance[models.ProductTypeFields, models.ProductType, models.PendingProductType](
			e.ProductTypes, bypass, profiles, Hooks[models.ProductTypeFields]{
				Validate: func(f *models.ProductTypeFields, creating bool) error { return validation.ValidateName(f.Name, creating) },
			}),
		SecurityTypes: NewGovernance[models.SecurityTypeFields, models.SecurityType, models.PendingSecurityType](
			e.SecurityTypes, bypass, profiles, Hooks[models.SecurityTypeFields]{
				Validate: func(f *models.SecurityTypeFields, creating bool) error { return validation.ValidateName(f.Name, creating) },
			}),
		Users: NewGovernance[models.UserFields, models.User, models.PendingUser](
			e.Users, bypass, profiles, userHooks),
	}
}

// HashPassword replaces a plaintext Password with its bcrypt hash so only
// the hash is ever snapshotted.
func HashPassword(f *models.UserFields) error {
	if f.Password == nil {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*f.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(fmt.Errorf("hash password: %w", err))
	}
	f.PasswordHash = models.Ptr(string(hash))
	f.Password = nil
	return nil
}
