package api

import (
	"time"

	"kapantask/domain"
)

type userView struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	IsAdmin      bool   `json:"is_admin"`
	DepartmentID *int64 `json:"department_id"`
}

func newUserView(u domain.User) userView {
	return userView{
		ID:           u.ID,
		Username:     u.Username,
		DisplayName:  u.DisplayName(),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		IsAdmin:      u.IsAdmin,
		DepartmentID: u.DepartmentID,
	}
}

type taskView struct {
	domain.Task
	StatusLabel string `json:"status_label"`
	IsOverdue   bool   `json:"is_overdue"`
}

func newTaskView(t domain.Task, now time.Time) taskView {
	return taskView{Task: t, StatusLabel: t.Status.Label(), IsOverdue: t.IsOverdue(now)}
}

func newTaskViews(tasks []domain.Task, now time.Time) []taskView {
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskView(t, now))
	}
	return out
}

type commentView struct {
	ID        int64     `json:"id"`
	Author    userView  `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func newCommentViews(comments []domain.Comment) []commentView {
	out := make([]commentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentView{ID: c.ID, Author: newUserView(c.User), Content: c.Content, CreatedAt: c.CreatedAt})
	}
	return out
}

type choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func statusChoices() []choice {
	out := make([]choice, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out = append(out, choice{Value: string(s), Label: s.Label()})
	}
	return out
}
