package models

// Coupon types accepted on a security.
const (
	CouponTypeFixed    = "Fixed"
	CouponTypeFloating = "Floating"
)

// SecurityFields holds the business attributes of a listed security.
// Tenor, TTM, EffectiveCoupon, DayCountBasis and FinalRating are derived.
type SecurityFields struct {
	SecurityName       *string  `gorm:"size:255;index" json:"security_name"`
	ISIN               *string  `gorm:"column:isin;size:12;index" json:"isin"`
	Description        *string  `gorm:"type:text" json:"description"`
	Issuer             *string  `gorm:"size:255" json:"issuer"`
	MarketCategoryID   *uint    `gorm:"index" json:"market_category_id"`
	ProductTypeID      *uint    `gorm:"index" json:"product_type_id"`
	SecurityTypeID     *uint    `gorm:"index" json:"security_type_id"`
	IssueDate          *Date    `json:"issue_date"`
	MaturityDate       *Date    `json:"maturity_date"`
	Tenor              *int     `json:"tenor"`
	TTM                *float64 `gorm:"column:ttm" json:"ttm"`
	Coupon             *float64 `json:"coupon"`
	CouponType         *string  `gorm:"size:20" json:"coupon_type"`
	CouponFrequency    *int     `json:"coupon_frequency"`
	FRM                *float64 `gorm:"column:frm" json:"frm"`
	FRBV               *float64 `gorm:"column:frbv" json:"frbv"`
	CouponFloor        *float64 `json:"coupon_floor"`
	CouponCap          *float64 `json:"coupon_cap"`
	EffectiveCoupon    *float64 `json:"effective_coupon"`
	DayCountConvention *string  `gorm:"size:30" json:"day_count_convention"`
	DayCountBasis      *int     `json:"day_count_basis"`
	Rating1            *string  `gorm:"column:rating1;size:20" json:"rating1"`
	RatingAgency1      *string  `gorm:"column:rating_agency1;size:100" json:"rating_agency1"`
	Rating2            *string  `gorm:"column:rating2;size:20" json:"rating2"`
	RatingAgency2      *string  `gorm:"column:rating_agency2;size:100" json:"rating_agency2"`
	FinalRating        *string  `gorm:"size:255" json:"final_rating"`
	OutstandingValue   *float64 `gorm:"type:numeric(24,4)" json:"outstanding_value"`
	Listed             *bool    `json:"listed"`
}

// Data returns the business attributes.
func (f *SecurityFields) Data() *SecurityFields { return f }

// Security is an authoritative security master record.
type Security struct {
	EntityMeta
	SecurityFields
}

func (Security) TableName() string { return "securities" }

// PendingSecurity is a frozen proposed change to a Security.
type PendingSecurity struct {
	PendingMeta
	SecurityFields
}

func (PendingSecurity) TableName() string { return "pending_securities" }
