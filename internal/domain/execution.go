package domain

import (
	"time"
)

// Execution is one user- or dependency-initiated unit of work, keyed to the
// function version whose trigger started it.
type Execution struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name              *string   `gorm:"column:name" json:"name,omitempty"`
	CollectionID      string    `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	FunctionID        string    `gorm:"type:uuid;column:function_id;not null;index" json:"function_id"`
	FunctionVersionID string    `gorm:"type:uuid;column:function_version_id;not null" json:"function_version_id"`
	TriggeredByID     string    `gorm:"type:uuid;column:triggered_by_id" json:"triggered_by_id"`
	TriggeredOn       time.Time `gorm:"column:triggered_on;not null;index" json:"triggered_on"`
}

func (Execution) TableName() string { return "executions" }

// Transaction is the commit-scoped group of function runs inside an
// execution. All runs sharing (transaction_by, transaction_key) in one
// execution belong to the same transaction.
type Transaction struct {
	ID             string        `gorm:"type:uuid;primaryKey" json:"id"`
	ExecutionID    string        `gorm:"type:uuid;column:execution_id;not null;index" json:"execution_id"`
	TransactionBy  TransactionBy `gorm:"column:transaction_by;not null" json:"transaction_by"`
	TransactionKey string        `gorm:"column:transaction_key;not null" json:"transaction_key"`
	TriggeredOn    time.Time     `gorm:"column:triggered_on;not null" json:"triggered_on"`
	// Column name is a schema contract; the original misspelling is kept.
	CommittedOn *time.Time `gorm:"column:commited_on" json:"commited_on,omitempty"`
	EndedOn     *time.Time `gorm:"column:ended_on" json:"ended_on,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// FunctionRun is one prospective invocation of a function version.
type FunctionRun struct {
	ID                string            `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      string            `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	FunctionID        string            `gorm:"type:uuid;column:function_id;not null;index" json:"function_id"`
	FunctionVersionID string            `gorm:"type:uuid;column:function_version_id;not null;index" json:"function_version_id"`
	ExecutionID       string            `gorm:"type:uuid;column:execution_id;not null;index" json:"execution_id"`
	TransactionID     string            `gorm:"type:uuid;column:transaction_id;not null;index" json:"transaction_id"`
	Trigger           TriggerKind       `gorm:"column:trigger;not null" json:"trigger"`
	Status            FunctionRunStatus `gorm:"column:status;not null;index" json:"status"`
	Attempts          int               `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error             string            `gorm:"column:error" json:"error,omitempty"`
	TriggeredOn       time.Time         `gorm:"column:triggered_on;not null" json:"triggered_on"`
	StartedOn         *time.Time        `gorm:"column:started_on" json:"started_on,omitempty"`
	EndedOn           *time.Time        `gorm:"column:ended_on" json:"ended_on,omitempty"`
}

func (FunctionRun) TableName() string { return "function_runs" }

// TableDataVersion is the output slot for each produced table of a run.
// has_data stays null until the run terminates; then true when the run wrote
// data, false when it reported NoData.
type TableDataVersion struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID     string     `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	TableID          string     `gorm:"type:uuid;column:table_id;not null;index" json:"table_id"`
	TableVersionID   string     `gorm:"type:uuid;column:table_version_id;not null" json:"table_version_id"`
	ExecutionID      string     `gorm:"type:uuid;column:execution_id;not null;index" json:"execution_id"`
	TransactionID    string     `gorm:"type:uuid;column:transaction_id;not null;index" json:"transaction_id"`
	FunctionRunID    string     `gorm:"type:uuid;column:function_run_id;not null;index" json:"function_run_id"`
	FunctionParamPos int        `gorm:"column:function_param_pos;not null" json:"function_param_pos"`
	Partitioned      bool       `gorm:"column:partitioned;not null;default:false" json:"partitioned"`
	HasData          *bool      `gorm:"column:has_data" json:"has_data,omitempty"`
	TriggeredOn      time.Time  `gorm:"column:triggered_on;not null;index" json:"triggered_on"`
	CommittedOn      *time.Time `gorm:"column:commited_on" json:"commited_on,omitempty"`
}

func (TableDataVersion) TableName() string { return "table_data_versions" }

// TablePartition holds one row per written partition of a partitioned
// table data version.
type TablePartition struct {
	ID                 string `gorm:"type:uuid;primaryKey" json:"id"`
	TableDataVersionID string `gorm:"type:uuid;column:table_data_version_id;not null;index" json:"table_data_version_id"`
	PartitionKey       string `gorm:"column:partition_key;not null" json:"partition_key"`
	FileName           string `gorm:"column:file_name;not null" json:"file_name"`
}

func (TablePartition) TableName() string { return "table_partitions" }

// FunctionRequirement is a resolved input binding: one row per selected
// (dependency position, version position) pair of a run. The pointer is
// null when no such historical version exists; the run is then invoked with
// a null input slot.
type FunctionRequirement struct {
	ID            string `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID  string `gorm:"type:uuid;column:collection_id;not null;index" json:"collection_id"`
	ExecutionID   string `gorm:"type:uuid;column:execution_id;not null;index" json:"execution_id"`
	TransactionID string `gorm:"type:uuid;column:transaction_id;not null;index" json:"transaction_id"`
	FunctionRunID string `gorm:"type:uuid;column:function_run_id;not null;index" json:"function_run_id"`
	DepPos        int    `gorm:"column:dep_pos;not null" json:"dep_pos"`
	VersionPos    int    `gorm:"column:version_pos;not null" json:"version_pos"`

	RequirementTableID            string  `gorm:"type:uuid;column:requirement_table_id;not null" json:"requirement_table_id"`
	RequirementTableVersionID     string  `gorm:"type:uuid;column:requirement_table_version_id;not null" json:"requirement_table_version_id"`
	RequirementTableDataVersionID *string `gorm:"type:uuid;column:requirement_table_data_version_id;index" json:"requirement_table_data_version_id,omitempty"`
}

func (FunctionRequirement) TableName() string { return "function_requirements" }

// WorkerMessage is the mailbox entry handed to the worker pool. The
// message_status flip from Unlocked to Locked is the row-level mutex that
// guarantees at-most-one delivery.
type WorkerMessage struct {
	ID            string              `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID  string              `gorm:"type:uuid;column:collection_id;not null" json:"collection_id"`
	ExecutionID   string              `gorm:"type:uuid;column:execution_id;not null;index" json:"execution_id"`
	TransactionID string              `gorm:"type:uuid;column:transaction_id;not null" json:"transaction_id"`
	FunctionRunID string              `gorm:"type:uuid;column:function_run_id;not null;index" json:"function_run_id"`
	MessageStatus WorkerMessageStatus `gorm:"column:message_status;not null;index" json:"message_status"`
	RequestPath   string              `gorm:"column:request_path" json:"request_path"`
	// ResponseHash fingerprints the applied callback body so repeated
	// deliveries can be told apart from conflicting ones.
	ResponseHash string     `gorm:"column:response_hash" json:"response_hash,omitempty"`
	CreatedOn    time.Time  `gorm:"column:created_on;not null" json:"created_on"`
	LockedOn     *time.Time `gorm:"column:locked_on" json:"locked_on,omitempty"`
	UnlockedOn   *time.Time `gorm:"column:unlocked_on" json:"unlocked_on,omitempty"`
}

func (WorkerMessage) TableName() string { return "worker_messages" }
