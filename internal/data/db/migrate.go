package db

import (
	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Identity + access
		// =========================
		&domain.User{},
		&domain.Role{},
		&domain.UserRole{},
		&domain.Permission{},
		&domain.InterCollectionPermission{},
		&domain.Session{},

		// =========================
		// Catalog entities
		// =========================
		&domain.Collection{},
		&domain.Function{},
		&domain.FunctionVersion{},
		&domain.Bundle{},
		&domain.Table{},
		&domain.TableVersion{},
		&domain.Dependency{},
		&domain.DependencyVersion{},
		&domain.Trigger{},
		&domain.TriggerVersion{},

		// =========================
		// Execution state
		// =========================
		&domain.Execution{},
		&domain.Transaction{},
		&domain.FunctionRun{},
		&domain.TableDataVersion{},
		&domain.TablePartition{},
		&domain.FunctionRequirement{},
		&domain.WorkerMessage{},
	)
}

// CreateContractViews (re)creates the *__with_names and *__with_function
// read views the list endpoints serve from.
func CreateContractViews(db *gorm.DB) error {
	views := []string{
		`CREATE OR REPLACE VIEW executions__with_names AS
		 SELECT e.*, c.name AS collection, fv.name AS function
		 FROM executions e
		 JOIN collections c ON c.id = e.collection_id
		 JOIN function_versions fv ON fv.id = e.function_version_id`,

		`CREATE OR REPLACE VIEW transactions__with_names AS
		 SELECT t.*, e.name AS execution_name, e.collection_id, e.triggered_by_id
		 FROM transactions t
		 JOIN executions e ON e.id = t.execution_id`,

		`CREATE OR REPLACE VIEW function_runs__with_names AS
		 SELECT fr.*, c.name AS collection, fv.name AS function, e.name AS execution_name
		 FROM function_runs fr
		 JOIN collections c ON c.id = fr.collection_id
		 JOIN function_versions fv ON fv.id = fr.function_version_id
		 JOIN executions e ON e.id = fr.execution_id`,

		`CREATE OR REPLACE VIEW table_data_versions__with_function AS
		 SELECT tdv.*, tv.name AS table_name, tv.private, fr.status AS function_run_status,
		        fv.id AS function_version_id, fv.name AS function
		 FROM table_data_versions tdv
		 JOIN table_versions tv ON tv.id = tdv.table_version_id
		 JOIN function_runs fr ON fr.id = tdv.function_run_id
		 JOIN function_versions fv ON fv.id = fr.function_version_id`,

		`CREATE OR REPLACE VIEW tables__with_names AS
		 SELECT t.*, c.name AS collection, tv.status AS status
		 FROM tables t
		 JOIN collections c ON c.id = t.collection_id
		 JOIN table_versions tv ON tv.id = t.table_version_id`,
	}
	for _, v := range views {
		if err := db.Exec(v).Error; err != nil {
			return err
		}
	}
	return nil
}
