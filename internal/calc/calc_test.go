package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTenorYears(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 10, TenorYears(date(2020, time.March, 15), date(2030, time.January, 1)))
	assert.Equal(t, 0, TenorYears(date(2024, time.January, 1), date(2024, time.December, 31)))
}

func TestTimeToMaturity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 17, 45, 0, 0, time.UTC)
	assert.InDelta(t, 1.0, TimeToMaturity(now, date(2026, time.January, 1)), 1e-9)
	assert.InDelta(t, 73.0/365.0, TimeToMaturity(now, date(2025, time.March, 15)), 1e-9)
	assert.Equal(t, 0.0, TimeToMaturity(now, date(2024, time.December, 1)), "matured")
	assert.Equal(t, 0.0, TimeToMaturity(now, now), "matures today")
}

func TestDayCountBasis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  int
	}{
		{"30/360", 0},
		{"Actual/Actual", 1},
		{"actual / 360", 2},
		{"ACTUAL/365", 3},
		{"30E/360", 4},
		{"", DefaultDayCountBasis},
		{"Bus/252", DefaultDayCountBasis},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, DayCountBasis(tt.label))
		})
	}
}

func TestEffectiveCoupon(t *testing.T) {
	t.Parallel()

	t.Run("fixed returns stated coupon", func(t *testing.T) {
		got := EffectiveCoupon(CouponInputs{CouponType: "Fixed", Coupon: f(12.5), FRM: f(1), FRBV: f(2)})
		require.NotNil(t, got)
		assert.Equal(t, 12.5, *got)
	})

	t.Run("floating below floor is raised to floor", func(t *testing.T) {
		got := EffectiveCoupon(CouponInputs{CouponType: "Floating", FRM: f(1), FRBV: f(2), Floor: f(5), Cap: f(10)})
		require.NotNil(t, got)
		assert.Equal(t, 5.0, *got)
	})

	t.Run("floating above cap is lowered to cap", func(t *testing.T) {
		got := EffectiveCoupon(CouponInputs{CouponType: "Floating", FRM: f(9), FRBV: f(4), Floor: f(5), Cap: f(10)})
		require.NotNil(t, got)
		assert.Equal(t, 10.0, *got)
	})

	t.Run("floating without bounds is not clamped", func(t *testing.T) {
		got := EffectiveCoupon(CouponInputs{CouponType: "Floating", FRM: f(10), FRBV: f(2.5)})
		require.NotNil(t, got)
		assert.Equal(t, 12.5, *got)
	})

	t.Run("floating sums exactly", func(t *testing.T) {
		got := EffectiveCoupon(CouponInputs{CouponType: "floating", FRM: f(0.1), FRBV: f(0.2)})
		require.NotNil(t, got)
		assert.Equal(t, 0.3, *got)
	})

	t.Run("floating without rate inputs keeps coupon", func(t *testing.T) {
		assert.Nil(t, EffectiveCoupon(CouponInputs{CouponType: "Floating"}))
		got := EffectiveCoupon(CouponInputs{CouponType: "Floating", Coupon: f(7)})
		require.NotNil(t, got)
		assert.Equal(t, 7.0, *got)
	})
}

func TestFinalRating(t *testing.T) {
	t.Parallel()

	got := FinalRating(s("AA"), s("Agusto"), s("A+"), s("GCR"))
	require.NotNil(t, got)
	assert.Equal(t, "AA/Agusto; A+/GCR", *got)

	got = FinalRating(nil, nil, s("BBB"), s("Fitch"))
	require.NotNil(t, got)
	assert.Equal(t, "BBB/Fitch", *got)

	got = FinalRating(s("AA"), s(" "), s("A"), s("S&P"))
	require.NotNil(t, got)
	assert.Equal(t, "A/S&P", *got)

	assert.Nil(t, FinalRating(nil, s("Agusto"), nil, nil))
}

func TestAuctionRatios(t *testing.T) {
	t.Parallel()

	t.Run("both ratios", func(t *testing.T) {
		bidCover, level := AuctionRatios(f(300), f(100), f(150))
		require.NotNil(t, bidCover)
		require.NotNil(t, level)
		assert.Equal(t, 2.0, *bidCover)
		assert.Equal(t, 300.0, *level)
	})

	t.Run("zero offered leaves subscription level unset", func(t *testing.T) {
		bidCover, level := AuctionRatios(f(300), f(0), f(150))
		require.NotNil(t, bidCover)
		assert.Equal(t, 2.0, *bidCover)
		assert.Nil(t, level)
	})

	t.Run("zero sold leaves bid cover unset", func(t *testing.T) {
		bidCover, level := AuctionRatios(f(50), f(200), f(0))
		assert.Nil(t, bidCover)
		require.NotNil(t, level)
		assert.Equal(t, 25.0, *level)
	})

	t.Run("missing subscription", func(t *testing.T) {
		bidCover, level := AuctionRatios(nil, f(100), f(100))
		assert.Nil(t, bidCover)
		assert.Nil(t, level)
	})
}

func TestDayOfWeek(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Wednesday", DayOfWeek(date(2025, time.January, 1)))
	assert.Equal(t, "Monday", DayOfWeek(date(2024, time.July, 15)))
}
