package domain

import (
	"time"
)

// Collection is the namespace for functions and tables. Soft deletion keeps
// the row around with name_when_deleted set; active rows have it null.
type Collection struct {
	ID              string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string     `gorm:"column:name;not null;index" json:"name"`
	Description     string     `gorm:"column:description" json:"description"`
	NameWhenDeleted *string    `gorm:"column:name_when_deleted" json:"name_when_deleted,omitempty"`
	CreatedOn       time.Time  `gorm:"column:created_on;not null" json:"created_on"`
	CreatedByID     string     `gorm:"type:uuid;column:created_by_id" json:"created_by_id"`
	ModifiedOn      time.Time  `gorm:"column:modified_on;not null" json:"modified_on"`
	ModifiedByID    string     `gorm:"type:uuid;column:modified_by_id" json:"modified_by_id"`
	DeletedOn       *time.Time `gorm:"column:deleted_on" json:"deleted_on,omitempty"`
}

func (Collection) TableName() string { return "collections" }

func (c *Collection) Active() bool { return c.NameWhenDeleted == nil }
