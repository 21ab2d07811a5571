// Package calc holds the pure derivations applied to securities and auction
// results before they are proposed or stored.
package calc

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const daysPerYear = 365

// DefaultDayCountBasis is used for unknown or missing conventions (Actual/Actual).
const DefaultDayCountBasis = 1

var dayCountBases = map[string]int{
	"30/360":        0,
	"actual/actual": 1,
	"actual/360":    2,
	"actual/365":    3,
	"30e/360":       4,
}

// TenorYears is the calendar-year difference between issue and maturity.
func TenorYears(issue, maturity time.Time) int {
	return maturity.Year() - issue.Year()
}

// TimeToMaturity returns the whole days from now until maturity divided by 365.
// It is 0 once the security has matured.
func TimeToMaturity(now, maturity time.Time) float64 {
	days := wholeDays(now, maturity)
	if days <= 0 {
		return 0
	}
	return decimal.NewFromInt(days).Div(decimal.NewFromInt(daysPerYear)).InexactFloat64()
}

func wholeDays(from, to time.Time) int64 {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int64(end.Sub(start).Hours() / 24)
}

// DayCountBasis maps a day-count convention label to its numeric basis.
func DayCountBasis(convention string) int {
	key := strings.ToLower(strings.Join(strings.Fields(convention), ""))
	if basis, ok := dayCountBases[key]; ok {
		return basis
	}
	return DefaultDayCountBasis
}

// CouponInputs carries the optional inputs of EffectiveCoupon.
type CouponInputs struct {
	CouponType string
	Coupon     *float64
	FRM        *float64
	FRBV       *float64
	Floor      *float64
	Cap        *float64
}

// EffectiveCoupon returns the stated coupon for fixed-rate securities. For
// floating-rate securities it returns FRM + FRBV clamped to [Floor, Cap], each
// bound applied only when present. A floating security with neither FRM nor
// FRBV keeps its stated coupon.
func EffectiveCoupon(in CouponInputs) *float64 {
	if !strings.EqualFold(strings.TrimSpace(in.CouponType), "floating") {
		return copyFloat(in.Coupon)
	}
	if in.FRM == nil && in.FRBV == nil {
		return copyFloat(in.Coupon)
	}

	rate := decimalOrZero(in.FRM).Add(decimalOrZero(in.FRBV))
	if in.Floor != nil {
		rate = decimal.Max(rate, decimal.NewFromFloat(*in.Floor))
	}
	if in.Cap != nil {
		rate = decimal.Min(rate, decimal.NewFromFloat(*in.Cap))
	}
	out := rate.InexactFloat64()
	return &out
}

// FinalRating joins the "rating/agency" pairs with "; ", skipping any pair
// whose rating or agency is blank. It returns nil when no pair is present.
func FinalRating(rating1, agency1, rating2, agency2 *string) *string {
	var parts []string
	for _, pair := range [][2]*string{{rating1, agency1}, {rating2, agency2}} {
		r, a := trimmed(pair[0]), trimmed(pair[1])
		if r == "" || a == "" {
			continue
		}
		parts = append(parts, r+"/"+a)
	}
	if len(parts) == 0 {
		return nil
	}
	out := strings.Join(parts, "; ")
	return &out
}

// AuctionRatios returns bid cover (subscribed / sold) and subscription level
// (subscribed / offered * 100). A ratio is nil when an input is missing or its
// denominator is zero.
func AuctionRatios(subscribed, offered, sold *float64) (bidCover, subscriptionLevel *float64) {
	if subscribed == nil {
		return nil, nil
	}
	amount := decimal.NewFromFloat(*subscribed)
	if sold != nil && *sold != 0 {
		v := amount.Div(decimal.NewFromFloat(*sold)).InexactFloat64()
		bidCover = &v
	}
	if offered != nil && *offered != 0 {
		v := amount.Div(decimal.NewFromFloat(*offered)).Mul(decimal.NewFromInt(100)).InexactFloat64()
		subscriptionLevel = &v
	}
	return bidCover, subscriptionLevel
}

// DayOfWeek returns the English weekday name of date.
func DayOfWeek(date time.Time) string {
	return date.Weekday().String()
}

func decimalOrZero(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
