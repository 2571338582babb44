// internal/database/seeder.go
package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/auth"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

// Seed creates a demo property with a manager, a field technician and a tenant
// the first time the server starts against an empty users collection. All
// seeded accounts share cfg.ManagerPassword.
func Seed(ctx context.Context, store repository.Store, cfg config.SeedConfig) error {
	count, err := store.Users().Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Println("Users already exist. Seeding skipped.")
		return nil
	}
	if cfg.ManagerPassword == "" {
		return fmt.Errorf("seed.managerPassword is required to seed an empty database")
	}

	log.Println("No users found. Seeding...")
	hashedPassword, err := auth.HashPassword(cfg.ManagerPassword)
	if err != nil {
		return err
	}
	managerEmail := strings.ToLower(strings.TrimSpace(cfg.ManagerEmail))
	domain := "example.com"
	if at := strings.LastIndex(managerEmail, "@"); at >= 0 {
		domain = managerEmail[at+1:]
	}
	now := time.Now().UTC()

	return store.WithTransaction(ctx, func(ctx context.Context) error {
		manager := &models.User{
			Email:        managerEmail,
			Name:         "Property Manager",
			PasswordHash: hashedPassword,
			Role:         models.RoleManager,
			Status:       models.UserActive,
		}
		if err := store.Users().Create(ctx, manager); err != nil {
			return err
		}

		property := &models.Property{
			Name:      "Demo Residence",
			Address:   models.Address{FullText: "1 Demo Street"},
			ManagerID: manager.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.Directory().CreateProperty(ctx, property); err != nil {
			return err
		}

		technician := &models.User{
			Email:        "technician@" + domain,
			Name:         "Field Technician",
			PasswordHash: hashedPassword,
			Role:         models.RoleFieldTechnician,
			PropertyID:   &property.ID,
			Status:       models.UserActive,
		}
		if err := store.Users().Create(ctx, technician); err != nil {
			return err
		}

		tenantID := primitive.NewObjectID()
		occupied := &models.Unit{PropertyID: property.ID, UnitNumber: "101", TenantID: &tenantID, CreatedAt: now}
		if err := store.Directory().CreateUnit(ctx, occupied); err != nil {
			return err
		}
		if err := store.Directory().CreateUnit(ctx, &models.Unit{PropertyID: property.ID, UnitNumber: "102", CreatedAt: now}); err != nil {
			return err
		}

		tenant := &models.User{
			ID:           tenantID,
			Email:        "tenant@" + domain,
			Name:         "Unit 101 Tenant",
			PasswordHash: hashedPassword,
			Role:         models.RoleTenant,
			PropertyID:   &property.ID,
			UnitID:       &occupied.ID,
			Status:       models.UserActive,
		}
		if err := store.Users().Create(ctx, tenant); err != nil {
			return err
		}

		log.Printf("Seeded property %s with manager %s", property.ID.Hex(), manager.Email)
		return nil
	})
}
