package repositories

import (
	"time"

	"gorm.io/gorm"
)

// DBUser represents the database model for an identity (with GORM tags)
type DBUser struct {
	ID           uint           `gorm:"primaryKey"`
	Username     string         `gorm:"uniqueIndex;size:50;not null"`
	PasswordHash string         `gorm:"column:password;size:255;not null"`
	Email        string         `gorm:"uniqueIndex;size:100;not null"`
	FullName     string         `gorm:"column:full_name;size:100"`
	Phone        string         `gorm:"size:20"`
	OTPEnabled   bool           `gorm:"column:otp_enabled;not null;default:false"`
	IsActive     bool           `gorm:"column:is_active;not null;default:false"`
	LastLogin    *time.Time     `gorm:"column:last_login"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
	UserRoles    []DBUserRole   `gorm:"foreignKey:UserID"`
}

// TableName returns the table name for GORM
func (DBUser) TableName() string {
	return "users"
}

// DBRole represents a role definition
type DBRole struct {
	ID          uint   `gorm:"primaryKey"`
	RoleName    string `gorm:"uniqueIndex;size:50;not null"`
	RoleCode    string `gorm:"uniqueIndex;size:20;not null"`
	Description string `gorm:"size:500"`
	IsActive    bool   `gorm:"column:is_active;not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (DBRole) TableName() string {
	return "roles"
}

// DBUserRole assigns a role to a user. (user_id, role_id) is unique.
type DBUserRole struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"uniqueIndex:idx_user_role;not null"`
	RoleID     uint      `gorm:"uniqueIndex:idx_user_role;not null"`
	Role       DBRole    `gorm:"foreignKey:RoleID"`
	AssignedBy *uint     `gorm:"column:assigned_by"`
	AssignedAt time.Time `gorm:"not null"`
	IsActive   bool      `gorm:"column:is_active;not null;default:false"`
}

// TableName returns the table name for GORM
func (DBUserRole) TableName() string {
	return "user_roles"
}

// Models lists the GORM models owned by this package, in migration order
func Models() []interface{} {
	return []interface{}{&DBRole{}, &DBUser{}, &DBUserRole{}}
}
