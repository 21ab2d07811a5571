// Package validation holds request-level checks run before a change enters
// the approval workflow.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"secmaster/internal/models"
)

var isinRegex = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

const maxReasonLength = 1000

// ValidateISIN checks the 12-character ISIN shape.
func ValidateISIN(isin string) error {
	if !isinRegex.MatchString(isin) {
		return fmt.Errorf("isin must be 12 characters: a 2-letter country code, 9 alphanumerics and a check digit")
	}
	return nil
}

// ValidateReason checks a rejection reason.
func ValidateReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("a rejection reason is required")
	}
	if len(reason) > maxReasonLength {
		return fmt.Errorf("reason must not exceed %d characters", maxReasonLength)
	}
	return nil
}

// ValidateSecurity checks a proposed security. creating requires the
// identifying fields; updates may omit anything.
func ValidateSecurity(f *models.SecurityFields, creating bool) error {
	if creating {
		if blank(f.SecurityName) {
			return fmt.Errorf("security_name is required")
		}
		if blank(f.ISIN) {
			return fmt.Errorf("isin is required")
		}
	}
	if f.ISIN != nil {
		if err := ValidateISIN(*f.ISIN); err != nil {
			return err
		}
	}
	if f.CouponType != nil && *f.CouponType != models.CouponTypeFixed && *f.CouponType != models.CouponTypeFloating {
		return fmt.Errorf("coupon_type must be %s or %s", models.CouponTypeFixed, models.CouponTypeFloating)
	}
	if f.IssueDate != nil && f.MaturityDate != nil && f.MaturityDate.Before(f.IssueDate.Time) {
		return fmt.Errorf("maturity_date must not precede issue_date")
	}
	if f.CouponFloor != nil && f.CouponCap != nil && *f.CouponFloor > *f.CouponCap {
		return fmt.Errorf("coupon_floor must not exceed coupon_cap")
	}
	if f.CouponFrequency != nil && *f.CouponFrequency < 0 {
		return fmt.Errorf("coupon_frequency must not be negative")
	}
	return nil
}

// ValidateAuctionResult checks a proposed auction result.
func ValidateAuctionResult(f *models.AuctionResultFields, creating bool) error {
	if creating {
		if blank(f.AuctionNumber) {
			return fmt.Errorf("auction_number is required")
		}
		if f.AuctionDate == nil {
			return fmt.Errorf("auction_date is required")
		}
	}
	if f.ISIN != nil && *f.ISIN != "" {
		if err := ValidateISIN(*f.ISIN); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{
		"amount_offered":    f.AmountOffered,
		"amount_subscribed": f.AmountSubscribed,
		"total_amount_sold": f.TotalAmountSold,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// ValidateName checks the name shared by the taxonomy kinds.
func ValidateName(name *string, creating bool) error {
	if creating && blank(name) {
		return fmt.Errorf("name is required")
	}
	if name != nil && len(*name) > 120 {
		return fmt.Errorf("name must not exceed 120 characters")
	}
	return nil
}

// ValidateUser checks a proposed back-office account.
func ValidateUser(f *models.UserFields, creating bool) error {
	if creating {
		if blank(f.Email) {
			return fmt.Errorf("email is required")
		}
		if blank(f.Role) {
			return fmt.Errorf("role is required")
		}
		if f.Password == nil {
			return fmt.Errorf("password is required")
		}
	}
	if f.Email != nil {
		if err := ValidateEmail(*f.Email); err != nil {
			return err
		}
	}
	if f.Role != nil && !models.ValidRole(*f.Role) {
		return fmt.Errorf("role must be one of %s, %s, %s", models.RoleInputter, models.RoleAuthoriser, models.RoleSuperAdmin)
	}
	if f.Password != nil {
		if err := ValidatePassword(*f.Password); err != nil {
			return err
		}
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
