package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/config"
	"github.com/you/authsvc/internal/infrastructure/auth"
	"github.com/you/authsvc/internal/infrastructure/database"
	"github.com/you/authsvc/internal/infrastructure/repositories"
)

const (
	defaultSeedTimeout = 30 * time.Second
	defaultSeedFile    = "config/seed.yml"
)

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedUser is a seed account with its plaintext password
type seedUser struct {
	repositories.SeedUser `yaml:",inline"`
	Password              string `yaml:"password"`
}

// seedFile is the layout of the seed YAML document
type seedFile struct {
	Roles []repositories.SeedRole `yaml:"roles"`
	Users []seedUser              `yaml:"users"`
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create roles and accounts from a seed file",
		Long: `Creates the roles and users listed in the seed file.
Existing users are skipped, so the command can be run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", defaultSeedFile, "seed file path")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, sc *seedConfig) error {
	doc, err := readSeedFile(sc.file)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	users, err := hashSeedUsers(auth.NewPasswordService(cfg.Password.BcryptCost), doc.Users)
	if err != nil {
		return err
	}

	cmd.Println("Connecting to database...")
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Schema)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	cmd.Println("Running migrations...")
	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	result, err := repositories.NewSeeder(db).Seed(ctx, doc.Roles, users)
	if err != nil {
		return oops.Code("SEED_FAILED").Wrap(err)
	}

	cmd.Printf("Seed complete: %d roles created, %d users created, %d users skipped\n",
		result.RolesCreated, result.UsersCreated, result.UsersSkipped)
	return nil
}

func readSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Code("SEED_FILE_INVALID").With("path", path).Wrap(err)
	}
	for i, u := range doc.Users {
		if u.Username == "" || u.Password == "" {
			return nil, oops.Code("SEED_FILE_INVALID").With("path", path).
				Errorf("user %d: username and password are required", i)
		}
	}
	return &doc, nil
}

func hashSeedUsers(passwords domain.PasswordService, users []seedUser) ([]repositories.SeedUser, error) {
	out := make([]repositories.SeedUser, 0, len(users))
	for _, u := range users {
		hash, err := passwords.Hash(u.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", u.Username, err)
		}
		su := u.SeedUser
		su.PasswordHash = hash
		out = append(out, su)
	}
	return out, nil
}
