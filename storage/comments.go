package storage

import (
	"context"

	"gorm.io/gorm/clause"

	"kapantask/domain"
)

// ListComments returns the thread of a task, oldest first.
func (s *Store) ListComments(ctx context.Context, taskID int64) ([]domain.Comment, error) {
	var out []domain.Comment
	err := s.db.WithContext(ctx).Preload("User").
		Where("task_id = ?", taskID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetComment loads a comment with its author and task, including the task's
// department and creator.
func (s *Store) GetComment(ctx context.Context, id int64) (domain.Comment, error) {
	var c domain.Comment
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Task.AssignedTo").
		Preload("Task.AssignedBy").
		First(&c, id).Error
	return c, translate(err)
}

// CreateComment inserts c; the notification hook fires once the row is committed.
func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) error {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&domain.Task{}).Where("id = ?", c.TaskID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return translate(db.Omit(clause.Associations).Create(c).Error)
}
