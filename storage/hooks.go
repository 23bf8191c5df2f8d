package storage

import (
	"context"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kapantask/domain"
	"kapantask/jobs"
)

// Enqueuer accepts background jobs without blocking on their execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// notificationHooks enqueues notification jobs after tasks and comments are
// inserted. It is registered on the create chain only, so updates never
// trigger it.
type notificationHooks struct {
	enqueuer Enqueuer
	logger   *log.Logger
}

func (h *notificationHooks) Name() string { return "kapantask:notifications" }

func (h *notificationHooks) Initialize(db *gorm.DB) error {
	return db.Callback().Create().
		After("gorm:commit_or_rollback_transaction").
		Register("kapantask:notify_created", h.afterCreate)
}

func (h *notificationHooks) afterCreate(db *gorm.DB) {
	if db.Error != nil || db.Statement.RowsAffected == 0 {
		return
	}
	switch v := db.Statement.Dest.(type) {
	case *domain.Task:
		h.enqueue(db.Statement.Context, domain.JobSendTaskNotification, v.ID)
	case *domain.Comment:
		h.enqueue(db.Statement.Context, domain.JobSendCommentNotification, v.ID)
	case *[]domain.Task:
		for i := range *v {
			h.enqueue(db.Statement.Context, domain.JobSendTaskNotification, (*v)[i].ID)
		}
	case *[]domain.Comment:
		for i := range *v {
			h.enqueue(db.Statement.Context, domain.JobSendCommentNotification, (*v)[i].ID)
		}
	}
}

func (h *notificationHooks) enqueue(ctx context.Context, name string, id int64) {
	if id == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	job, err := jobs.New(name, domain.NotificationArgs{ID: id})
	if err == nil {
		err = h.enqueuer.Enqueue(ctx, job)
	}
	if err != nil {
		h.logger.WithFields(log.Fields{"job": name, "id": id}).WithError(err).Error("notification enqueue failed")
		return
	}
	h.logger.WithFields(log.Fields{"job": name, "id": id, "job_id": job.ID}).Debug("notification enqueued")
}
