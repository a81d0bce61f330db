// seed inserts the base roles and a confirmed development user for local testing.
// Idempotent: roles are ensured by name and the dev user is skipped when it already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/db"
	rolerepo "taskflow/backend/internal/role/repository"
	"taskflow/backend/internal/security"
	userdomain "taskflow/backend/internal/user/domain"
	userrepo "taskflow/backend/internal/user/repository"
)

const (
	adminRoleID  = "00000000-0000-4000-8000-000000000001"
	memberRoleID = "00000000-0000-4000-8000-000000000002"

	devUserEmail = "dev@example.com"
	devPassword  = "Password-123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	roles := rolerepo.NewPostgresRepository(conn)
	users := userrepo.NewPostgresRepository(conn)
	tx := db.NewTxManager(conn)
	now := time.Now().UTC()

	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := roles.Ensure(ctx, adminRoleID, "Admin", now); err != nil {
			return err
		}
		member, err := roles.Ensure(ctx, memberRoleID, cfg.DefaultRole, now)
		if err != nil {
			return err
		}

		normalized := security.NormalizeEmail(devUserEmail)
		existing, err := users.GetByNormalizedEmail(ctx, normalized)
		if err != nil {
			return err
		}
		if existing != nil {
			log.Printf("Dev user %s already exists. Skipping.", devUserEmail)
			return nil
		}

		hash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
		if err != nil {
			return err
		}
		u := &userdomain.User{
			ID:              uuid.NewString(),
			Email:           devUserEmail,
			NormalizedEmail: normalized,
			PasswordHash:    hash,
			EmailConfirmed:  true,
			LockoutEnabled:  cfg.LockoutEnabled,
			IsActive:        true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		if err := roles.AssignToUser(ctx, u.ID, member.ID, now); err != nil {
			return err
		}
		log.Printf("Created dev user %s (password %s)", devUserEmail, devPassword)
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Println("Seed complete.")
}
