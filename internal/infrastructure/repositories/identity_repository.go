package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/you/authsvc/domain"
	"gorm.io/gorm"
)

// IdentityRepositoryImpl implements domain.IdentityRepository using GORM
type IdentityRepositoryImpl struct {
	db *gorm.DB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *gorm.DB) domain.IdentityRepository {
	return &IdentityRepositoryImpl{db: db}
}

// FindByUsername implements domain.IdentityRepository
func (r *IdentityRepositoryImpl) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	return r.findOne(ctx, "username = ?", username)
}

// FindByEmail implements domain.IdentityRepository. Emails compare case-insensitively.
func (r *IdentityRepositoryImpl) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.findOne(ctx, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

// FindByID implements domain.IdentityRepository
func (r *IdentityRepositoryImpl) FindByID(ctx context.Context, id uint) (*domain.Identity, error) {
	return r.findOne(ctx, "id = ?", id)
}

// Save implements domain.IdentityRepository. Only the password hash and last
// login are written; everything else belongs to the account administration side.
func (r *IdentityRepositoryImpl) Save(ctx context.Context, identity *domain.Identity) error {
	res := r.db.WithContext(ctx).
		Model(&DBUser{}).
		Where("id = ?", identity.ID).
		Updates(map[string]interface{}{
			"password":   identity.PasswordHash,
			"last_login": identity.LastLogin,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *IdentityRepositoryImpl) findOne(ctx context.Context, query string, arg interface{}) (*domain.Identity, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).
		Preload("UserRoles.Role").
		Where(query, arg).
		First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return dbToDomain(&dbUser), nil
}

// dbToDomain converts database user to domain identity
func dbToDomain(dbUser *DBUser) *domain.Identity {
	roles := make([]domain.RoleAssignment, 0, len(dbUser.UserRoles))
	for _, ur := range dbUser.UserRoles {
		roles = append(roles, domain.RoleAssignment{
			RoleCode:   ur.Role.RoleCode,
			Active:     ur.IsActive && ur.Role.IsActive,
			AssignedBy: ur.AssignedBy,
			AssignedAt: ur.AssignedAt,
		})
	}
	return &domain.Identity{
		ID:           dbUser.ID,
		Username:     dbUser.Username,
		Email:        dbUser.Email,
		Phone:        dbUser.Phone,
		FullName:     dbUser.FullName,
		PasswordHash: dbUser.PasswordHash,
		Active:       dbUser.IsActive,
		OTPEnabled:   dbUser.OTPEnabled,
		Roles:        roles,
		LastLogin:    dbUser.LastLogin,
		CreatedAt:    dbUser.CreatedAt,
		UpdatedAt:    dbUser.UpdatedAt,
	}
}
