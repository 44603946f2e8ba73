package domain

import (
	"time"
)

// Identity and permission tables are schema contracts the execution core
// relies on; authentication and RBAC evaluation happen outside it.

type User struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null;index" json:"name"`
	FullName   string    `gorm:"column:full_name" json:"full_name"`
	Email      string    `gorm:"column:email" json:"email"`
	Enabled    bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedOn  time.Time `gorm:"column:created_on;not null" json:"created_on"`
	ModifiedOn time.Time `gorm:"column:modified_on;not null" json:"modified_on"`
}

func (User) TableName() string { return "users" }

type Role struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null;index" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	CreatedOn   time.Time `gorm:"column:created_on;not null" json:"created_on"`
}

func (Role) TableName() string { return "roles" }

type UserRole struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;column:user_id;not null;index" json:"user_id"`
	RoleID    string    `gorm:"type:uuid;column:role_id;not null;index" json:"role_id"`
	CreatedOn time.Time `gorm:"column:created_on;not null" json:"created_on"`
}

func (UserRole) TableName() string { return "users_roles" }

type Permission struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	RoleID         string    `gorm:"type:uuid;column:role_id;not null;index" json:"role_id"`
	PermissionType string    `gorm:"column:permission_type;not null" json:"permission_type"`
	EntityType     string    `gorm:"column:entity_type;not null" json:"entity_type"`
	EntityID       *string   `gorm:"type:uuid;column:entity_id" json:"entity_id,omitempty"`
	CreatedOn      time.Time `gorm:"column:created_on;not null" json:"created_on"`
}

func (Permission) TableName() string { return "permissions" }

type InterCollectionPermission struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	FromCollectionID string    `gorm:"type:uuid;column:from_collection_id;not null;index" json:"from_collection_id"`
	ToCollectionID   string    `gorm:"type:uuid;column:to_collection_id;not null;index" json:"to_collection_id"`
	CreatedOn        time.Time `gorm:"column:created_on;not null" json:"created_on"`
}

func (InterCollectionPermission) TableName() string { return "inter_collection_permissions" }

type Session struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string     `gorm:"type:uuid;column:user_id;not null;index" json:"user_id"`
	RoleID       string     `gorm:"type:uuid;column:role_id;not null" json:"role_id"`
	TokenID      string     `gorm:"column:token_id;not null;index" json:"token_id"`
	Status       string     `gorm:"column:status;not null" json:"status"`
	CreatedOn    time.Time  `gorm:"column:created_on;not null" json:"created_on"`
	ExpiresOn    time.Time  `gorm:"column:expires_on;not null" json:"expires_on"`
	StatusChange *time.Time `gorm:"column:status_change_on" json:"status_change_on,omitempty"`
}

func (Session) TableName() string { return "sessions" }
