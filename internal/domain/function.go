package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Function is the logical, versioned program. The row points at its current
// version; history lives in function_versions. function_version_id is a weak
// reference: the version row is inserted first, then the parent pointer is
// updated, all under one catalog transaction.
type Function struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      string    `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	Name              string    `gorm:"column:name;not null;index" json:"name"`
	FunctionVersionID string    `gorm:"type:uuid;column:function_version_id;not null" json:"function_version_id"`
	CreatedOn         time.Time `gorm:"column:created_on;not null" json:"created_on"`
	CreatedByID       string    `gorm:"type:uuid;column:created_by_id" json:"created_by_id"`
}

func (Function) TableName() string { return "functions" }

// FunctionVersion is an immutable snapshot of a function definition.
type FunctionVersion struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID   string         `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	FunctionID     string         `gorm:"type:uuid;column:function_id;not null;index" json:"function_id"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	Description    string         `gorm:"column:description" json:"description"`
	RuntimeValues  datatypes.JSON `gorm:"column:runtime_values;type:jsonb" json:"runtime_values"`
	DataLocation   string         `gorm:"column:data_location" json:"data_location"`
	StorageVersion string         `gorm:"column:storage_version" json:"storage_version"`
	BundleID       string         `gorm:"type:uuid;column:bundle_id" json:"bundle_id"`
	Snippet        string         `gorm:"column:snippet" json:"snippet"`
	Decorator      Decorator      `gorm:"column:decorator;not null;default:T" json:"decorator"`
	TransactionBy  TransactionBy  `gorm:"column:transaction_by;not null;default:C" json:"transaction_by"`
	MaxRetries     int            `gorm:"column:max_retries;not null;default:0" json:"max_retries"`
	Status         VersionStatus  `gorm:"column:status;not null;index" json:"status"`
	DefinedOn      time.Time      `gorm:"column:defined_on;not null" json:"defined_on"`
	DefinedByID    string         `gorm:"type:uuid;column:defined_by_id" json:"defined_by_id"`
}

func (FunctionVersion) TableName() string { return "function_versions" }

// Bundle is the content-addressed code archive of a function version.
type Bundle struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID string    `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	Hash         string    `gorm:"column:hash;not null" json:"hash"`
	CreatedOn    time.Time `gorm:"column:created_on;not null" json:"created_on"`
	CreatedByID  string    `gorm:"type:uuid;column:created_by_id" json:"created_by_id"`
}

func (Bundle) TableName() string { return "bundles" }
