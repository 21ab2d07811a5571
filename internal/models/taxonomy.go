package models

// MarketCategoryFields describes a market segment (e.g. "Fixed Income").
type MarketCategoryFields struct {
	Name        *string `gorm:"size:120;index" json:"name"`
	Code        *string `gorm:"size:30;index" json:"code"`
	Description *string `gorm:"type:text" json:"description"`
}

func (f *MarketCategoryFields) Data() *MarketCategoryFields { return f }

type MarketCategory struct {
	EntityMeta
	MarketCategoryFields
}

func (MarketCategory) TableName() string { return "market_categories" }

type PendingMarketCategory struct {
	PendingMeta
	MarketCategoryFields
}

func (PendingMarketCategory) TableName() string { return "pending_market_categories" }

// ProductTypeFields describes a product within a market category.
type ProductTypeFields struct {
	Name             *string `gorm:"size:120;index" json:"name"`
	Code             *string `gorm:"size:30;index" json:"code"`
	MarketCategoryID *uint   `gorm:"index" json:"market_category_id"`
	Description      *string `gorm:"type:text" json:"description"`
}

func (f *ProductTypeFields) Data() *ProductTypeFields { return f }

type ProductType struct {
	EntityMeta
	ProductTypeFields
}

func (ProductType) TableName() string { return "product_types" }

type PendingProductType struct {
	PendingMeta
	ProductTypeFields
}

func (PendingProductType) TableName() string { return "pending_product_types" }

// SecurityTypeFields describes an instrument class within a product type.
type SecurityTypeFields struct {
	Name          *string `gorm:"size:120;index" json:"name"`
	Code          *string `gorm:"size:30;index" json:"code"`
	ProductTypeID *uint   `gorm:"index" json:"product_type_id"`
	Description   *string `gorm:"type:text" json:"description"`
}

func (f *SecurityTypeFields) Data() *SecurityTypeFields { return f }

type SecurityType struct {
	EntityMeta
	SecurityTypeFields
}

func (SecurityType) TableName() string { return "security_types" }

type PendingSecurityType struct {
	PendingMeta
	SecurityTypeFields
}

func (PendingSecurityType) TableName() string { return "pending_security_types" }
