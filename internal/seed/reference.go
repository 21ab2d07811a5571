package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"secmaster/internal/models"
	"secmaster/internal/workflow"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed reference.yaml
var referenceYAML []byte

// Taxonomy is the reference hierarchy: market categories own product types,
// which own security types.
type Taxonomy struct {
	MarketCategories []CategoryRef `yaml:"market_categories"`
}

type CategoryRef struct {
	Name         string       `yaml:"name"`
	Code         string       `yaml:"code"`
	Description  string       `yaml:"description"`
	ProductTypes []ProductRef `yaml:"product_types"`
}

type ProductRef struct {
	Name          string    `yaml:"name"`
	Code          string    `yaml:"code"`
	Description   string    `yaml:"description"`
	SecurityTypes []TypeRef `yaml:"security_types"`
}

type TypeRef struct {
	Name        string `yaml:"name"`
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
}

// ReferenceStats counts rows created by Reference.
type ReferenceStats struct {
	MarketCategories int
	ProductTypes     int
	SecurityTypes    int
}

// LoadTaxonomy parses the embedded reference data.
func LoadTaxonomy() (*Taxonomy, error) {
	return ParseTaxonomy(referenceYAML)
}

// ParseTaxonomy parses a reference document and checks every node has a
// name and code.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	for _, c := range t.MarketCategories {
		if c.Name == "" || c.Code == "" {
			return nil, fmt.Errorf("market category %q: name and code are required", c.Name)
		}
		for _, p := range c.ProductTypes {
			if p.Name == "" || p.Code == "" {
				return nil, fmt.Errorf("product type %q under %s: name and code are required", p.Name, c.Code)
			}
			for _, s := range p.SecurityTypes {
				if s.Name == "" || s.Code == "" {
					return nil, fmt.Errorf("security type %q under %s: name and code are required", s.Name, p.Code)
				}
			}
		}
	}
	return &t, nil
}

// Reference creates the embedded taxonomy as approved records stamped with
// actorID. Nodes whose code already exists are reused, so reruns are no-ops.
func Reference(ctx context.Context, db *gorm.DB, actorID uint) (ReferenceStats, error) {
	var stats ReferenceStats
	t, err := LoadTaxonomy()
	if err != nil {
		return stats, err
	}

	categories := workflow.NewMarketCategories(db, nil)
	products := workflow.NewProductTypes(db, nil)
	types := workflow.NewSecurityTypes(db, nil)

	for _, c := range t.MarketCategories {
		categoryID, created, err := ensure(ctx, db, &models.MarketCategory{}, c.Code, func() (uint, error) {
			e, err := categories.CreateDirect(ctx, models.MarketCategoryFields{
				Name: models.Ptr(c.Name), Code: models.Ptr(c.Code), Description: optional(c.Description),
			}, actorID)
			if err != nil {
				return 0, err
			}
			return e.ID, nil
		})
		if err != nil {
			return stats, fmt.Errorf("market category %s: %w", c.Code, err)
		}
		if created {
			stats.MarketCategories++
		}

		for _, p := range c.ProductTypes {
			productID, created, err := ensure(ctx, db, &models.ProductType{}, p.Code, func() (uint, error) {
				e, err := products.CreateDirect(ctx, models.ProductTypeFields{
					Name: models.Ptr(p.Name), Code: models.Ptr(p.Code), Description: optional(p.Description),
					MarketCategoryID: models.Ptr(categoryID),
				}, actorID)
				if err != nil {
					return 0, err
				}
				return e.ID, nil
			})
			if err != nil {
				return stats, fmt.Errorf("product type %s: %w", p.Code, err)
			}
			if created {
				stats.ProductTypes++
			}

			for _, s := range p.SecurityTypes {
				_, created, err := ensure(ctx, db, &models.SecurityType{}, s.Code, func() (uint, error) {
					e, err := types.CreateDirect(ctx, models.SecurityTypeFields{
						Name: models.Ptr(s.Name), Code: models.Ptr(s.Code), Description: optional(s.Description),
						ProductTypeID: models.Ptr(productID),
					}, actorID)
					if err != nil {
						return 0, err
					}
					return e.ID, nil
				})
				if err != nil {
					return stats, fmt.Errorf("security type %s: %w", s.Code, err)
				}
				if created {
					stats.SecurityTypes++
				}
			}
		}
	}
	return stats, nil
}

// ensure returns the id of the live row of model's table with code, calling
// create when there is none.
func ensure(ctx context.Context, db *gorm.DB, model any, code string, create func() (uint, error)) (uint, bool, error) {
	var row struct{ ID uint }
	err := db.WithContext(ctx).Model(model).Select("id").Where("code = ?", code).Take(&row).Error
	switch {
	case err == nil:
		return row.ID, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return 0, false, err
	}
	id, err := create()
	return id, err == nil, err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
