package database

import "secmaster/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.PendingUser{},
		&models.MarketCategory{},
		&models.PendingMarketCategory{},
		&models.ProductType{},
		&models.PendingProductType{},
		&models.SecurityType{},
		&models.PendingSecurityType{},
		&models.Security{},
		&models.PendingSecurity{},
		&models.AuctionResult{},
		&models.PendingAuctionResult{},
		&models.PendingAction{},
	}
}
