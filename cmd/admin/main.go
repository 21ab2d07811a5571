// Package main provides role management utilities for the security master.
// Granting the bypass role lets a user create, update and delete records
// without a second pair of eyes, so it is kept out of the HTTP API.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"secmaster/internal/config"
	"secmaster/internal/database"
	"secmaster/internal/models"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin/main.go grant <user_id>            - Give the user the bypass role")
		fmt.Println("  go run ./cmd/admin/main.go revoke <user_id> [role]    - Return the user to role (default inputter)")
		fmt.Println("  go run ./cmd/admin/main.go list                       - List bypass role holders")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	command := os.Args[1]

	switch command {
	case "grant":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin/main.go grant <user_id>")
			os.Exit(1)
		}
		grantBypass(db, cfg.BypassRole, os.Args[2])

	case "revoke":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin/main.go revoke <user_id> [role]")
			os.Exit(1)
		}
		fallback := models.RoleInputter
		if len(os.Args) > 3 {
			fallback = os.Args[3]
		}
		if !models.ValidRole(fallback) || fallback == cfg.BypassRole {
			fmt.Printf("Cannot revoke to role %q\n", fallback)
			os.Exit(1)
		}
		revokeBypass(db, cfg.BypassRole, os.Args[2], fallback)

	case "list":
		listBypass(db, cfg.BypassRole)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func findUser(db *gorm.DB, userID string) models.User {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Printf("User with ID %s not found\n", userID)
		} else {
			log.Fatalf("Database error: %v", err)
		}
		os.Exit(1)
	}
	return user
}

func grantBypass(db *gorm.DB, bypassRole, userID string) {
	user := findUser(db, userID)

	if str(user.Role) == bypassRole {
		fmt.Printf("User %s (ID: %d) already holds %s\n", str(user.Email), user.ID, bypassRole)
		return
	}
	if user.ApprovalStatus != models.EntityStatusActive {
		fmt.Printf("User %s (ID: %d) has a change awaiting approval; resolve it first\n", str(user.Email), user.ID)
		os.Exit(1)
	}

	if err := db.Model(&user).Update("role", bypassRole).Error; err != nil {
		log.Fatalf("Failed to grant role: %v", err)
	}

	fmt.Printf("✅ Granted %s to %s (ID: %d)\n", bypassRole, str(user.Email), user.ID)
}

func revokeBypass(db *gorm.DB, bypassRole, userID, fallback string) {
	user := findUser(db, userID)

	if str(user.Role) != bypassRole {
		fmt.Printf("User %s (ID: %d) does not hold %s\n", str(user.Email), user.ID, bypassRole)
		return
	}

	if err := db.Model(&user).Update("role", fallback).Error; err != nil {
		log.Fatalf("Failed to revoke role: %v", err)
	}

	fmt.Printf("✅ Moved %s (ID: %d) from %s to %s\n", str(user.Email), user.ID, bypassRole, fallback)
}

func listBypass(db *gorm.DB, bypassRole string) {
	var admins []models.User
	if err := db.Where("role = ?", bypassRole).Order("id").Find(&admins).Error; err != nil {
		log.Fatalf("Failed to fetch users: %v", err)
	}

	if len(admins) == 0 {
		fmt.Printf("No users hold %s\n", bypassRole)
		return
	}

	fmt.Printf("\n📋 Users holding %s:\n", bypassRole)
	fmt.Println("─────────────────────────────────────")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Name: %s %s | Email: %s\n", admin.ID, str(admin.FirstName), str(admin.LastName), str(admin.Email))
	}
	fmt.Println("─────────────────────────────────────")
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
