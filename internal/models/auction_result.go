package models

// AuctionResultFields holds the outcome of a primary-market auction.
// DayOfWeek, BidCoverRatio and SubscriptionLevel are derived.
type AuctionResultFields struct {
	AuctionNumber     *string  `gorm:"size:50;index" json:"auction_number"`
	ISIN              *string  `gorm:"column:isin;size:12;index" json:"isin"`
	SecurityTypeID    *uint    `gorm:"index" json:"security_type_id"`
	AuctionDate       *Date    `json:"auction_date"`
	DayOfWeek         *string  `gorm:"size:12" json:"day_of_week"`
	Tenor             *int     `json:"tenor"`
	MaturityDate      *Date    `json:"maturity_date"`
	AmountOffered     *float64 `gorm:"type:numeric(24,4)" json:"amount_offered"`
	AmountSubscribed  *float64 `gorm:"type:numeric(24,4)" json:"amount_subscribed"`
	TotalAmountSold   *float64 `gorm:"type:numeric(24,4)" json:"total_amount_sold"`
	StopRate          *float64 `json:"stop_rate"`
	LowestBid         *float64 `json:"lowest_bid"`
	HighestBid        *float64 `json:"highest_bid"`
	BidCoverRatio     *float64 `json:"bid_cover_ratio"`
	SubscriptionLevel *float64 `json:"subscription_level"`
}

// Data returns the business attributes.
func (f *AuctionResultFields) Data() *AuctionResultFields { return f }

// AuctionResult is an authoritative auction outcome.
type AuctionResult struct {
	EntityMeta
	AuctionResultFields
}

func (AuctionResult) TableName() string { return "auction_results" }

// PendingAuctionResult is a frozen proposed change to an AuctionResult.
type PendingAuctionResult struct {
	PendingMeta
	AuctionResultFields
}

func (PendingAuctionResult) TableName() string { return "pending_auction_results" }
