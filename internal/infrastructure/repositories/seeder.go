package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SeedRole describes a role to ensure exists
type SeedRole struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedUser describes an account to create when missing. PasswordHash must
// already be hashed.
type SeedUser struct {
	Username     string   `yaml:"username"`
	Email        string   `yaml:"email"`
	FullName     string   `yaml:"full_name"`
	Phone        string   `yaml:"phone"`
	PasswordHash string   `yaml:"-"`
	OTPEnabled   bool     `yaml:"otp_enabled"`
	Active       bool     `yaml:"active"`
	Roles        []string `yaml:"roles"`
}

// SeedResult counts what a seed run created
type SeedResult struct {
	RolesCreated int
	UsersCreated int
	UsersSkipped int
}

// Seeder populates roles and accounts for development and first boot
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// Seed creates missing roles and users in one transaction. Existing users are
// left untouched.
func (s *Seeder) Seed(ctx context.Context, roles []SeedRole, users []SeedUser) (SeedResult, error) {
	var result SeedResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roleIDs := make(map[string]uint, len(roles))
		for _, r := range roles {
			var role DBRole
			err := tx.Where("role_code = ?", r.Code).First(&role).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				role = DBRole{RoleCode: r.Code, RoleName: r.Name, Description: r.Description, IsActive: true}
				if err := tx.Create(&role).Error; err != nil {
					return fmt.Errorf("failed to seed role %s: %w", r.Code, err)
				}
				result.RolesCreated++
			case err != nil:
				return fmt.Errorf("failed to look up role %s: %w", r.Code, err)
			}
			roleIDs[r.Code] = role.ID
		}

		for _, u := range users {
			var existing DBUser
			err := tx.Where("username = ?", u.Username).First(&existing).Error
			if err == nil {
				result.UsersSkipped++
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up user %s: %w", u.Username, err)
			}

			dbUser := DBUser{
				Username:     u.Username,
				Email:        u.Email,
				FullName:     u.FullName,
				Phone:        u.Phone,
				PasswordHash: u.PasswordHash,
				OTPEnabled:   u.OTPEnabled,
				IsActive:     u.Active,
			}
			if err := tx.Create(&dbUser).Error; err != nil {
				return fmt.Errorf("failed to create user %s: %w", u.Username, err)
			}
			for _, code := range u.Roles {
				roleID, ok := roleIDs[code]
				if !ok {
					var role DBRole
					if err := tx.Where("role_code = ?", code).First(&role).Error; err != nil {
						return fmt.Errorf("user %s references unknown role %s", u.Username, code)
					}
					roleID = role.ID
					roleIDs[code] = roleID
				}
				assignment := DBUserRole{
					UserID:     dbUser.ID,
					RoleID:     roleID,
					AssignedAt: time.Now(),
					IsActive:   true,
				}
				if err := tx.Create(&assignment).Error; err != nil {
					return fmt.Errorf("failed to assign role %s to %s: %w", code, u.Username, err)
				}
			}
			result.UsersCreated++
		}
		return nil
	})
	return result, err
}
