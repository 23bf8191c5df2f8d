package storage

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"kapantask/domain"
)

// CreateUser hashes password and inserts u.
func (s *Store) CreateUser(ctx context.Context, u *domain.User, password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	u.Email = strings.TrimSpace(u.Email)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := usernameTaken(tx, u.Username, 0); err != nil {
			return err
		}
		return translate(tx.Omit("Department").Create(u).Error)
	})
}

// ListUsers returns every account ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if err := s.db.WithContext(ctx).Preload("Department").Order("username ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUser saves the profile fields of u. A non-empty password replaces
// the stored hash; an empty one keeps it.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User, password string) error {
	fields := map[string]any{
		"username":      u.Username,
		"email":         strings.TrimSpace(u.Email),
		"first_name":    u.FirstName,
		"last_name":     u.LastName,
		"is_admin":      u.IsAdmin,
		"department_id": u.DepartmentID,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fields["password_hash"] = string(hash)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := usernameTaken(tx, u.Username, u.ID); err != nil {
			return err
		}
		res := tx.Model(&domain.User{}).Where("id = ?", u.ID).Updates(fields)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func usernameTaken(tx *gorm.DB, username string, exceptID int64) error {
	var count int64
	q := tx.Model(&domain.User{}).Where("username = ?", username)
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

// GetUser loads a user with their department.
func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).Preload("Department").First(&u, id).Error
	return u, translate(err)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).Preload("Department").Where("username = ?", username).First(&u).Error
	return u, translate(err)
}

// Authenticate matches login against usernames first and emails second.
func (s *Store) Authenticate(ctx context.Context, login, password string) (domain.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	u, err := s.GetUserByUsername(ctx, login)
	if errors.Is(err, domain.ErrNotFound) {
		err = translate(s.db.WithContext(ctx).Preload("Department").
			Where("LOWER(email) = ?", strings.ToLower(login)).Order("id").First(&u).Error)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}
