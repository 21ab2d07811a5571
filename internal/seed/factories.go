// Package seed provides reference data and demo fixtures for development
// and tests.
package seed

import (
	"fmt"
	"strings"
	"time"

	"secmaster/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

const (
	isinAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// DemoPassword is the login of every generated user.
	DemoPassword = "Passw0rd!Demo"
)

// Factory builds unsaved catalogue fields with realistic fake values.
type Factory struct {
	faker      *gofakeit.Faker
	skipBcrypt bool
	now        func() time.Time
}

// NewFactory returns a factory. A zero seed draws from the clock.
func NewFactory(seed int64, skipBcrypt bool) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{faker: gofakeit.New(seed), skipBcrypt: skipBcrypt, now: time.Now}
}

// ISIN returns a Nigerian-prefixed ISIN-shaped code.
func (f *Factory) ISIN() string {
	var sb strings.Builder
	sb.WriteString("NG")
	for i := 0; i < 9; i++ {
		sb.WriteByte(isinAlphabet[f.faker.Number(0, len(isinAlphabet)-1)])
	}
	sb.WriteByte(byte('0' + f.faker.Number(0, 9)))
	return sb.String()
}

// User builds an account holding role. The password is DemoPassword.
func (f *Factory) User(role string) (models.UserFields, error) {
	first, last := f.faker.FirstName(), f.faker.LastName()
	email := strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, f.faker.Number(100, 9999)))

	hash := DemoPassword
	if !f.skipBcrypt {
		b, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
		if err != nil {
			return models.UserFields{}, fmt.Errorf("hash demo password: %w", err)
		}
		hash = string(b)
	}
	return models.UserFields{
		FirstName:    models.Ptr(first),
		LastName:     models.Ptr(last),
		Email:        models.Ptr(email),
		Role:         models.Ptr(role),
		PasswordHash: models.Ptr(hash),
	}, nil
}

// Security builds a bond issued within the last five years, maturing two to
// thirty years after issue.
func (f *Factory) Security(securityTypeID *uint) models.SecurityFields {
	issue := f.now().AddDate(0, 0, -f.faker.Number(30, 5*365)).UTC().Truncate(24 * time.Hour)
	maturity := issue.AddDate(f.faker.Number(2, 30), 0, 0)
	coupon := float64(f.faker.Number(500, 2000)) / 100

	fields := models.SecurityFields{
		SecurityName:       models.Ptr(fmt.Sprintf("%.2f%% FGN %s", coupon, strings.ToUpper(maturity.Format("Jan 2006")))),
		ISIN:               models.Ptr(f.ISIN()),
		Issuer:             models.Ptr("Federal Government of Nigeria"),
		Description:        models.Ptr(f.faker.Sentence(8)),
		SecurityTypeID:     securityTypeID,
		IssueDate:          models.DatePtr(issue),
		MaturityDate:       models.DatePtr(maturity),
		Coupon:             models.Ptr(coupon),
		CouponType:         models.Ptr(models.CouponTypeFixed),
		CouponFrequency:    models.Ptr(2),
		DayCountConvention: models.Ptr("Actual/365"),
		Rating1:            models.Ptr(f.faker.RandomString([]string{"AAA", "AA+", "AA", "A"})),
		RatingAgency1:      models.Ptr(f.faker.RandomString([]string{"Agusto", "GCR", "DataPro"})),
		OutstandingValue:   models.Ptr(float64(f.faker.Number(10, 900)) * 1e9),
		Listed:             models.Ptr(f.faker.Bool()),
	}
	if f.faker.Number(0, 4) == 0 {
		fields.CouponType = models.Ptr(models.CouponTypeFloating)
		fields.FRM = models.Ptr(float64(f.faker.Number(50, 300)) / 100)
		fields.FRBV = models.Ptr(float64(f.faker.Number(1000, 1800)) / 100)
		fields.CouponFloor = models.Ptr(10.0)
		fields.CouponCap = models.Ptr(22.0)
	}
	return fields
}

// AuctionResult builds the primary auction of isin held in the last year.
func (f *Factory) AuctionResult(isin string, maturity *models.Date) models.AuctionResultFields {
	date := f.now().AddDate(0, 0, -f.faker.Number(1, 365)).UTC().Truncate(24 * time.Hour)
	offered := float64(f.faker.Number(50, 500)) * 1e9
	subscribed := offered * float64(f.faker.Number(60, 350)) / 100
	sold := offered
	if subscribed < offered {
		sold = subscribed
	}
	low := float64(f.faker.Number(1000, 1600)) / 100
	high := low + float64(f.faker.Number(50, 400))/100

	return models.AuctionResultFields{
		AuctionNumber:    models.Ptr(fmt.Sprintf("AUC-%s-%03d", date.Format("2006"), f.faker.Number(1, 999))),
		ISIN:             models.Ptr(isin),
		AuctionDate:      models.DatePtr(date),
		MaturityDate:     maturity,
		AmountOffered:    models.Ptr(offered),
		AmountSubscribed: models.Ptr(subscribed),
		TotalAmountSold:  models.Ptr(sold),
		StopRate:         models.Ptr(low + (high-low)/2),
		LowestBid:        models.Ptr(low),
		HighestBid:       models.Ptr(high),
	}
}
