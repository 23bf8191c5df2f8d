package api

import (
	"context"

	"kapantask/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	Authenticate(ctx context.Context, login, password string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	CreateUser(ctx context.Context, u *domain.User, password string) error
	UpdateUser(ctx context.Context, u *domain.User, password string) error

	ListDepartments(ctx context.Context) ([]domain.Department, error)
	GetDepartment(ctx context.Context, id int64) (domain.Department, error)
	CreateDepartment(ctx context.Context, d *domain.Department) error
	UpdateDepartment(ctx context.Context, d *domain.Department) error
	DeleteDepartment(ctx context.Context, id int64) error

	ListTasks(ctx context.Context, q domain.TaskQuery) ([]domain.Task, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	CreateTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	UpdateTaskStatus(ctx context.Context, id int64, status domain.Status) error
	CountTasks(ctx context.Context, departmentID *int64) (domain.TaskCounts, error)
	CountTasksByDepartment(ctx context.Context) ([]domain.DepartmentCounts, error)

	ListComments(ctx context.Context, taskID int64) ([]domain.Comment, error)
	CreateComment(ctx context.Context, c *domain.Comment) error

	CurrentEmailConfig(ctx context.Context) (domain.EmailConfiguration, error)
	ActivateEmailConfig(ctx context.Context, cfg *domain.EmailConfiguration) error
}

// Authenticator is implemented by types able to extract usernames from
// bearer Authorization headers.
type Authenticator interface {
	UsernameFromAuthHeader(string) (string, error)
}
