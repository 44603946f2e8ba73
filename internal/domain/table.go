package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Table is the logical, versioned output of a function. function_param_pos
// is negative for system tables invisible to users. The row is physically
// removed on table deletion; history stays in table_versions.
type Table struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID     string    `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	Name             string    `gorm:"column:name;not null;index" json:"name"`
	FunctionID       string    `gorm:"type:uuid;column:function_id;not null;index" json:"function_id"`
	TableVersionID   string    `gorm:"type:uuid;column:table_version_id;not null" json:"table_version_id"`
	FunctionParamPos int       `gorm:"column:function_param_pos;not null" json:"function_param_pos"`
	Private          bool      `gorm:"column:private;not null;default:false" json:"private"`
	Partitioned      bool      `gorm:"column:partitioned;not null;default:false" json:"partitioned"`
	CreatedOn        time.Time `gorm:"column:created_on;not null" json:"created_on"`
	CreatedByID      string    `gorm:"type:uuid;column:created_by_id" json:"created_by_id"`
}

func (Table) TableName() string { return "tables" }

func (t *Table) System() bool { return t.FunctionParamPos < 0 }

// TableVersion is an immutable snapshot of a table definition, tied to the
// function version that produces it. Schema carries the column definition
// envelope once the first data version lands.
type TableVersion struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      string         `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	TableID           string         `gorm:"type:uuid;column:table_id;not null;index" json:"table_id"`
	Name              string         `gorm:"column:name;not null" json:"name"`
	FunctionVersionID string         `gorm:"type:uuid;column:function_version_id;not null;index" json:"function_version_id"`
	FunctionParamPos  int            `gorm:"column:function_param_pos;not null" json:"function_param_pos"`
	Private           bool           `gorm:"column:private;not null;default:false" json:"private"`
	Partitioned       bool           `gorm:"column:partitioned;not null;default:false" json:"partitioned"`
	Schema            datatypes.JSON `gorm:"column:schema;type:jsonb" json:"schema"`
	Status            VersionStatus  `gorm:"column:status;not null;index" json:"status"`
	DefinedOn         time.Time      `gorm:"column:defined_on;not null" json:"defined_on"`
	DefinedByID       string         `gorm:"type:uuid;column:defined_by_id" json:"defined_by_id"`
}

func (TableVersion) TableName() string { return "table_versions" }

// Dependency is the stable edge from a consumer function to a producer
// table. The versioned expression lives in dependency_versions.
type Dependency struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      string    `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	FunctionID        string    `gorm:"type:uuid;column:function_id;not null;index" json:"function_id"`
	TableCollectionID string    `gorm:"type:uuid;column:table_collection_id;not null" json:"table_collection_id"`
	TableID           string    `gorm:"type:uuid;column:table_id;not null;index" json:"table_id"`
	CreatedOn         time.Time `gorm:"column:created_on;not null" json:"created_on"`
}

func (Dependency) TableName() string { return "dependencies" }

// DependencyVersion snapshots one dependency of one function version:
// the input position and the table_versions expression to resolve.
type DependencyVersion struct {
	ID                string        `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      string        `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	DependencyID      string        `gorm:"type:uuid;column:dependency_id;not null;index" json:"dependency_id"`
	FunctionVersionID string        `gorm:"type:uuid;column:function_version_id;not null;index" json:"function_version_id"`
	TableID           string        `gorm:"type:uuid;column:table_id;not null" json:"table_id"`
	DepPos            int           `gorm:"column:dep_pos;not null" json:"dep_pos"`
	TableVersions     string        `gorm:"column:table_versions;not null" json:"table_versions"`
	Status            VersionStatus `gorm:"column:status;not null;index" json:"status"`
	DefinedOn         time.Time     `gorm:"column:defined_on;not null" json:"defined_on"`
}

func (DependencyVersion) TableName() string { return "dependency_versions" }

// Trigger is the stable edge meaning "schedule this function whenever the
// referenced table produces a new data version".
type Trigger struct {
	ID                  string    `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID        string    `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	FunctionID          string    `gorm:"type:uuid;column:function_id;not null;index" json:"function_id"`
	TriggerCollectionID string    `gorm:"type:uuid;column:trigger_collection_id;not null" json:"trigger_collection_id"`
	TriggerTableID      string    `gorm:"type:uuid;column:trigger_table_id;not null;index" json:"trigger_table_id"`
	CreatedOn           time.Time `gorm:"column:created_on;not null" json:"created_on"`
}

func (Trigger) TableName() string { return "triggers" }

type TriggerVersion struct {
	ID                string        `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      string        `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	TriggerID         string        `gorm:"type:uuid;column:trigger_id;not null;index" json:"trigger_id"`
	FunctionVersionID string        `gorm:"type:uuid;column:function_version_id;not null;index" json:"function_version_id"`
	TriggerTableID    string        `gorm:"type:uuid;column:trigger_table_id;not null" json:"trigger_table_id"`
	Status            VersionStatus `gorm:"column:status;not null;index" json:"status"`
	DefinedOn         time.Time     `gorm:"column:defined_on;not null" json:"defined_on"`
}

func (TriggerVersion) TableName() string { return "trigger_versions" }
