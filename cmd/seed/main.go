// Command main runs the database seeder for the security master.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"secmaster/internal/bootstrap"
	"secmaster/internal/config"
	"secmaster/internal/models"
	"secmaster/internal/seed"

	"gorm.io/gorm"
)

func main() {
	referenceOnly := flag.Bool("reference", false, "Only load the market taxonomy")
	inputters := flag.Int("inputters", 5, "Number of inputters to create")
	authorisers := flag.Int("authorisers", 3, "Number of authorisers to create")
	securities := flag.Int("securities", 40, "Number of securities to create")
	auctions := flag.Int("auctions", 20, "Number of auction results to create")
	proposals := flag.Int("proposals", 10, "Number of open security proposals to leave for review")
	shouldClean := flag.Bool("clean", false, "Clear the catalogue before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible data (0 uses the clock)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	actorID, err := bypassActor(db, cfg.BypassRole)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx := context.Background()
	if *referenceOnly {
		stats, err := seed.Reference(ctx, db, actorID)
		if err != nil {
			log.Fatalf("❌ Reference seeding failed: %v", err)
		}
		log.Printf("✨ Reference data loaded: %d categories, %d product types, %d security types\n",
			stats.MarketCategories, stats.ProductTypes, stats.SecurityTypes)
		return
	}

	log.Printf("Target: %d inputters, %d authorisers, %d securities, %d auctions, %d proposals, clean=%v\n",
		*inputters, *authorisers, *securities, *auctions, *proposals, *shouldClean)

	sum, err := seed.Demo(ctx, db, actorID, seed.Options{
		Inputters:   *inputters,
		Authorisers: *authorisers,
		Securities:  *securities,
		Auctions:    *auctions,
		Proposals:   *proposals,
		Clean:       *shouldClean,
		RandSeed:    *randSeed,
	})
	if err != nil {
		log.Fatalf("❌ Demo seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d users, %d securities, %d auctions, %d open proposals.\n",
		sum.Users, sum.Securities, sum.Auctions, sum.Proposals)
	log.Printf("📧 All demo users have the password: %s\n", seed.DemoPassword)
}

// bypassActor returns the oldest account holding the bypass role. Seeded
// records are stamped with it.
func bypassActor(db *gorm.DB, role string) (uint, error) {
	var admin models.User
	err := db.Where("role = ?", role).Order("id").First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("no %q user found: set DEV_BOOTSTRAP_ROOT or grant the role with cmd/admin", role)
	}
	if err != nil {
		return 0, fmt.Errorf("find %s user: %w", role, err)
	}
	return admin.ID, nil
}
