package validation

import (
	"strings"
	"testing"
	"time"

	"secmaster/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidateISIN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		isin    string
		wantErr bool
	}{
		{"NGFGN0000001", false},
		{"US0378331005", false},
		{"ng0378331005", true},
		{"NG037833100", true},
		{"NG037833100X", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateISIN(tt.isin)
		if tt.wantErr {
			assert.Error(t, err, tt.isin)
		} else {
			assert.NoError(t, err, tt.isin)
		}
	}
}

func TestValidateReason(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateReason("wrong coupon"))
	assert.Error(t, ValidateReason("  "))
	assert.Error(t, ValidateReason(strings.Repeat("x", maxReasonLength+1)))
}

func TestValidateSecurity(t *testing.T) {
	t.Parallel()
	issue := models.DatePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	before := models.DatePtr(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		fields   models.SecurityFields
		creating bool
		wantErr  bool
	}{
		{"valid create", models.SecurityFields{SecurityName: models.Ptr("FGN 2030"), ISIN: models.Ptr("NGFGN0000001")}, true, false},
		{"create without name", models.SecurityFields{ISIN: models.Ptr("NGFGN0000001")}, true, true},
		{"partial update", models.SecurityFields{Coupon: models.Ptr(3.0)}, false, false},
		{"bad isin", models.SecurityFields{ISIN: models.Ptr("bad")}, false, true},
		{"bad coupon type", models.SecurityFields{CouponType: models.Ptr("Zero")}, false, true},
		{"maturity before issue", models.SecurityFields{IssueDate: issue, MaturityDate: before}, false, true},
		{"floor above cap", models.SecurityFields{CouponFloor: models.Ptr(9.0), CouponCap: models.Ptr(8.0)}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecurity(&tt.fields, tt.creating)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAuctionResult(t *testing.T) {
	t.Parallel()
	assert.Error(t, ValidateAuctionResult(&models.AuctionResultFields{}, true))
	assert.NoError(t, ValidateAuctionResult(&models.AuctionResultFields{
		AuctionNumber: models.Ptr("A-1"),
		AuctionDate:   models.DatePtr(time.Now()),
	}, true))
	assert.Error(t, ValidateAuctionResult(&models.AuctionResultFields{AmountOffered: models.Ptr(-1.0)}, false))
}

func TestValidateUser(t *testing.T) {
	t.Parallel()
	valid := models.UserFields{
		Email:    models.Ptr("ops@example.com"),
		Role:     models.Ptr(models.RoleInputter),
		Password: models.Ptr("SecurePass12!@"),
	}
	assert.NoError(t, ValidateUser(&valid, true))
	assert.Error(t, ValidateUser(&models.UserFields{Email: models.Ptr("ops@example.com"), Role: models.Ptr(models.RoleInputter)}, true))
	assert.Error(t, ValidateUser(&models.UserFields{Role: models.Ptr("root")}, false))
	assert.NoError(t, ValidateUser(&models.UserFields{FirstName: models.Ptr("Ada")}, false))
	assert.Error(t, ValidateName(nil, true))
}
