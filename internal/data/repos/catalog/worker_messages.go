package catalog

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type WorkerMessageRepo interface {
	Create(dbc dbctx.Context, m *domain.WorkerMessage) error
	GetByRun(dbc dbctx.Context, functionRunID string) (*domain.WorkerMessage, error)
	// Lock flips Unlocked to Locked; the row-level mutex that guarantees
	// at-most-one delivery. Reports false when another dispatcher won.
	Lock(dbc dbctx.Context, id string, now time.Time) (bool, error)
	Unlock(dbc dbctx.Context, id string, now time.Time) error
	// SetResponseHash fingerprints the callback body applied through this
	// message.
	SetResponseHash(dbc dbctx.Context, id, hash string) error
	SetRequestPath(dbc dbctx.Context, id, path string) error
}

type workerMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkerMessageRepo(db *gorm.DB, baseLog *logger.Logger) WorkerMessageRepo {
	return &workerMessageRepo{db: db, log: baseLog.With("repo", "WorkerMessageRepo")}
}

func (r *workerMessageRepo) Create(dbc dbctx.Context, m *domain.WorkerMessage) error {
	return wrapDB(handle(dbc, r.db).Create(m).Error, "create worker message")
}

func (r *workerMessageRepo) GetByRun(dbc dbctx.Context, functionRunID string) (*domain.WorkerMessage, error) {
	var m domain.WorkerMessage
	err := handle(dbc, r.db).
		Where("function_run_id = ?", functionRunID).
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "worker message of run %s", functionRunID)
	}
	return &m, nil
}

func (r *workerMessageRepo) Lock(dbc dbctx.Context, id string, now time.Time) (bool, error) {
	res := handle(dbc, r.db).
		Model(&domain.WorkerMessage{}).
		Where("id = ? AND message_status = ?", id, domain.MessageUnlocked).
		Updates(map[string]interface{}{
			"message_status": domain.MessageLocked,
			"locked_on":      now,
		})
	if res.Error != nil {
		return false, wrapDB(res.Error, "lock worker message %s", id)
	}
	return res.RowsAffected > 0, nil
}

func (r *workerMessageRepo) Unlock(dbc dbctx.Context, id string, now time.Time) error {
	err := handle(dbc, r.db).
		Model(&domain.WorkerMessage{}).
		Where("id = ? AND message_status = ?", id, domain.MessageLocked).
		Updates(map[string]interface{}{
			"message_status": domain.MessageUnlocked,
			"unlocked_on":    now,
		}).Error
	return wrapDB(err, "unlock worker message %s", id)
}

func (r *workerMessageRepo) SetResponseHash(dbc dbctx.Context, id, hash string) error {
	err := handle(dbc, r.db).
		Model(&domain.WorkerMessage{}).
		Where("id = ?", id).
		Update("response_hash", hash).Error
	return wrapDB(err, "set response hash on %s", id)
}

func (r *workerMessageRepo) SetRequestPath(dbc dbctx.Context, id, path string) error {
	err := handle(dbc, r.db).
		Model(&domain.WorkerMessage{}).
		Where("id = ?", id).
		Update("request_path", path).Error
	return wrapDB(err, "set request path on %s", id)
}
