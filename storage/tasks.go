package storage

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kapantask/domain"
)

// ListTasks returns matching tasks, most recently created first.
func (s *Store) ListTasks(ctx context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	db := s.db.WithContext(ctx).Model(&domain.Task{}).
		Preload("AssignedTo").
		Preload("AssignedBy")
	if q.DepartmentID != nil {
		db = db.Where("assigned_to_id = ?", *q.DepartmentID)
	}
	switch q.Filter {
	case domain.FilterCompleted:
		db = db.Where("status = ?", domain.StatusCompleted)
	case domain.FilterInProgress:
		db = db.Where("status = ?", domain.StatusInProgress)
	case domain.FilterOverdue:
		db = db.Where("status <> ? AND due_date < ?", domain.StatusCompleted, s.utcNow())
	}
	var out []domain.Task
	if err := db.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var t domain.Task
	err := s.db.WithContext(ctx).
		Preload("AssignedTo").
		Preload("AssignedBy").
		First(&t, id).Error
	return t, translate(err)
}

// CreateTask inserts t; the notification hook fires once the row is committed.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	if t.Status == "" {
		t.Status = domain.StatusNew
	}
	t.DueDate = t.DueDate.UTC()
	db := s.db.WithContext(ctx)
	if err := requireDepartment(db, t.AssignedToID); err != nil {
		return err
	}
	// Not wrapped in an outer transaction: the hook must run after commit.
	return translate(db.Omit(clause.Associations).Create(t).Error)
}

// UpdateTask overwrites the editable fields of the task with t.ID.
func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	t.DueDate = t.DueDate.UTC()
	t.UpdatedAt = s.utcNow()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireDepartment(tx, t.AssignedToID); err != nil {
			return err
		}
		return updateTaskColumns(tx, t.ID, map[string]any{
			"title":          t.Title,
			"description":    t.Description,
			"status":         t.Status,
			"assigned_to_id": t.AssignedToID,
			"due_date":       t.DueDate,
			"updated_at":     t.UpdatedAt,
		})
	})
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status domain.Status) error {
	return updateTaskColumns(s.db.WithContext(ctx), id, map[string]any{
		"status":     status,
		"updated_at": s.utcNow(),
	})
}

func updateTaskColumns(db *gorm.DB, id int64, cols map[string]any) error {
	res := db.Model(&domain.Task{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func requireDepartment(tx *gorm.DB, id int64) error {
	var count int64
	if err := tx.Model(&domain.Department{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// countColumns aggregates the dashboard counters in one pass.
const countColumns = "COUNT(*) AS total, " +
	"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, " +
	"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS in_progress, " +
	"COALESCE(SUM(CASE WHEN status <> ? AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue"

// CountTasks aggregates tasks of one department, or all when departmentID is nil.
func (s *Store) CountTasks(ctx context.Context, departmentID *int64) (domain.TaskCounts, error) {
	db := s.db.WithContext(ctx).Model(&domain.Task{}).
		Select(countColumns, domain.StatusCompleted, domain.StatusInProgress, domain.StatusCompleted, s.utcNow())
	if departmentID != nil {
		db = db.Where("assigned_to_id = ?", *departmentID)
	}
	var counts domain.TaskCounts
	if err := db.Scan(&counts).Error; err != nil {
		return domain.TaskCounts{}, err
	}
	return counts, nil
}

type departmentCountRow struct {
	AssignedToID int64
	Total        int64
	Completed    int64
	InProgress   int64
	Overdue      int64
}

// CountTasksByDepartment returns counters for every department, including
// departments without tasks.
func (s *Store) CountTasksByDepartment(ctx context.Context) ([]domain.DepartmentCounts, error) {
	departments, err := s.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	var rows []departmentCountRow
	err = s.db.WithContext(ctx).Model(&domain.Task{}).
		Select("assigned_to_id, "+countColumns, domain.StatusCompleted, domain.StatusInProgress, domain.StatusCompleted, s.utcNow()).
		Group("assigned_to_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byDept := make(map[int64]domain.TaskCounts, len(rows))
	for _, r := range rows {
		byDept[r.AssignedToID] = domain.TaskCounts{Total: r.Total, Completed: r.Completed, InProgress: r.InProgress, Overdue: r.Overdue}
	}
	out := make([]domain.DepartmentCounts, 0, len(departments))
	for _, d := range departments {
		out = append(out, domain.DepartmentCounts{Department: d, TaskCounts: byDept[d.ID]})
	}
	return out, nil
}
