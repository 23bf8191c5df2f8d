package domain

import (
	"strings"
	"time"
)

// Department is an organizational unit that owns a pool of tasks and has one
// notification address.
type Department struct {
	ID    int64  `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:100;not null" json:"name"`
	Email string `gorm:"size:254;not null;uniqueIndex" json:"email"`
}

// User is an account able to sign in. Administrators may have no department.
type User struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	Username     string      `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Email        string      `gorm:"size:254;index" json:"email"`
	FirstName    string      `gorm:"size:150" json:"first_name"`
	LastName     string      `gorm:"size:150" json:"last_name"`
	PasswordHash string      `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool        `gorm:"not null" json:"is_admin"`
	DepartmentID *int64      `gorm:"index" json:"department_id"`
	Department   *Department `gorm:"constraint:OnDelete:SET NULL" json:"department,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// DisplayName returns the full name when set and the username otherwise.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}

// CanAccess reports whether the user may see tasks assigned to departmentID.
func (u User) CanAccess(departmentID int64) bool {
	if u.IsAdmin {
		return true
	}
	return u.DepartmentID != nil && *u.DepartmentID == departmentID
}

// Comment is a single message in a task thread.
type Comment struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	TaskID    int64     `gorm:"not null;index" json:"task_id"`
	Task      Task      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"constraint:OnDelete:CASCADE" json:"user"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// EmailConfiguration holds SMTP credentials used for outbound mail. Only one
// row is active at a time.
type EmailConfiguration struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	SMTPHost     string `gorm:"column:smtp_host;size:100;not null" json:"smtp_host"`
	SMTPPort     int    `gorm:"column:smtp_port;not null" json:"smtp_port"`
	SMTPUser     string `gorm:"column:smtp_user;size:100" json:"smtp_user"`
	SMTPPassword string `gorm:"column:smtp_password;size:100" json:"-"`
	UseTLS       bool   `gorm:"column:use_tls" json:"use_tls"`
	FromEmail    string `gorm:"column:from_email;size:254;not null" json:"from_email"`
	IsActive     bool   `gorm:"column:is_active;index" json:"is_active"`
}
