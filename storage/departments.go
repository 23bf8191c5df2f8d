package storage

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"kapantask/domain"
)

func (s *Store) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	var out []domain.Department
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetDepartment(ctx context.Context, id int64) (domain.Department, error) {
	var d domain.Department
	err := s.db.WithContext(ctx).First(&d, id).Error
	return d, translate(err)
}

// CreateDepartment inserts d. A reused email yields domain.ErrConflict.
func (s *Store) CreateDepartment(ctx context.Context, d *domain.Department) error {
	d.Email = strings.TrimSpace(d.Email)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := emailTaken(tx, d.Email, 0); err != nil {
			return err
		}
		return translate(tx.Create(d).Error)
	})
}

func (s *Store) UpdateDepartment(ctx context.Context, d *domain.Department) error {
	d.Email = strings.TrimSpace(d.Email)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := emailTaken(tx, d.Email, d.ID); err != nil {
			return err
		}
		res := tx.Model(&domain.Department{}).Where("id = ?", d.ID).
			Updates(map[string]any{"name": d.Name, "email": d.Email})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// DeleteDepartment removes the department together with its tasks. Members
// keep their accounts with the department link cleared.
func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.User{}).Where("department_id = ?", id).Update("department_id", nil).Error; err != nil {
			return err
		}
		taskIDs := tx.Model(&domain.Task{}).Select("id").Where("assigned_to_id = ?", id)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("assigned_to_id = ?", id).Delete(&domain.Task{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Department{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func emailTaken(tx *gorm.DB, email string, exceptID int64) error {
	var count int64
	q := tx.Model(&domain.Department{}).Where("LOWER(email) = ?", strings.ToLower(email))
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrConflict
	}
	return nil
}
