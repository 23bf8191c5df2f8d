// Package notify sends email about new tasks and comments. Dispatch never
// fails the caller: every outcome is reported as a Result.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"kapantask/domain"
)

// Store is the read side the dispatcher needs.
type Store interface {
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	GetComment(ctx context.Context, id int64) (domain.Comment, error)
	ActiveEmailConfig(ctx context.Context) (domain.EmailConfiguration, error)
}

type Status string

const (
	StatusSent     Status = "sent"
	StatusSkipped  Status = "skipped"
	StatusNotFound Status = "not_found"
	StatusFailed   Status = "failed"
)

// Result describes the outcome of one dispatch.
type Result struct {
	Job        string   `json:"job"`
	JobID      string   `json:"job_id,omitempty"`
	ObjectID   int64    `json:"object_id"`
	Status     Status   `json:"status"`
	Recipients []string `json:"recipients,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

func (r Result) String() string {
	kind := "task"
	if r.Job == domain.JobSendCommentNotification {
		kind = "comment"
	}
	switch r.Status {
	case StatusSent:
		return fmt.Sprintf("%s %d notification sent to %s", kind, r.ObjectID, strings.Join(r.Recipients, ", "))
	case StatusNotFound:
		return fmt.Sprintf("%s %d not found", kind, r.ObjectID)
	case StatusSkipped:
		return fmt.Sprintf("%s %d notification skipped: %s", kind, r.ObjectID, r.Detail)
	default:
		return fmt.Sprintf("%s %d notification failed: %s", kind, r.ObjectID, r.Detail)
	}
}

// Defaults is the SMTP setup used when no configuration is active.
type Defaults struct {
	SMTP      SMTPConfig
	FromEmail string
}

// Dispatcher renders and sends notifications.
type Dispatcher struct {
	store     Store
	transport Transport
	defaults  Defaults
	logger    *log.Logger
}

func NewDispatcher(store Store, transport Transport, defaults Defaults, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{store: store, transport: transport, defaults: defaults, logger: logger}
}

// SendTaskNotification mails the department a task is assigned to.
func (d *Dispatcher) SendTaskNotification(ctx context.Context, taskID int64) Result {
	res := Result{Job: domain.JobSendTaskNotification, ObjectID: taskID}
	task, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return res.fail(err)
	}
	to := recipients([]string{task.AssignedTo.Email}, "")
	if len(to) == 0 {
		return res.skip("no recipients")
	}
	body, err := renderTask(task)
	if err != nil {
		return res.fail(err)
	}
	return d.send(ctx, res, Message{Subject: "New task: " + task.Title, Body: body, To: to})
}

// SendCommentNotification mails the task's department and creator, except
// the comment author.
func (d *Dispatcher) SendCommentNotification(ctx context.Context, commentID int64) Result {
	res := Result{Job: domain.JobSendCommentNotification, ObjectID: commentID}
	comment, err := d.store.GetComment(ctx, commentID)
	if err != nil {
		return res.fail(err)
	}
	task := comment.Task
	to := recipients([]string{task.AssignedTo.Email, task.AssignedBy.Email}, comment.User.Email)
	if len(to) == 0 {
		return res.skip("no recipients")
	}
	body, err := renderComment(comment)
	if err != nil {
		return res.fail(err)
	}
	return d.send(ctx, res, Message{Subject: "New comment on task: " + task.Title, Body: body, To: to})
}

func (d *Dispatcher) send(ctx context.Context, res Result, msg Message) Result {
	cfg, from, err := d.resolve(ctx)
	if err != nil {
		return res.fail(err)
	}
	msg.From = from
	res.Recipients = msg.To
	d.logger.WithFields(log.Fields{"job": res.Job, "object_id": res.ObjectID, "host": cfg.Host, "to": msg.To}).Debug("sending notification")
	if err := d.transport.Send(ctx, cfg, msg); err != nil {
		return res.fail(err)
	}
	res.Status = StatusSent
	return res
}

// resolve picks the active configuration, falling back to process defaults.
func (d *Dispatcher) resolve(ctx context.Context) (SMTPConfig, string, error) {
	active, err := d.store.ActiveEmailConfig(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return d.defaults.SMTP, d.defaults.FromEmail, nil
	}
	if err != nil {
		return SMTPConfig{}, "", fmt.Errorf("load email configuration: %w", err)
	}
	cfg := SMTPConfig{
		Host:     active.SMTPHost,
		Port:     active.SMTPPort,
		Username: active.SMTPUser,
		Password: active.SMTPPassword,
		UseTLS:   active.UseTLS,
	}
	from := active.FromEmail
	if from == "" {
		from = d.defaults.FromEmail
	}
	return cfg, from, nil
}

func (r Result) fail(err error) Result {
	if errors.Is(err, domain.ErrNotFound) {
		r.Status = StatusNotFound
		return r
	}
	r.Status = StatusFailed
	r.Detail = err.Error()
	return r
}

func (r Result) skip(reason string) Result {
	r.Status = StatusSkipped
	r.Detail = reason
	return r
}

// recipients trims and dedupes addrs case-insensitively, keeping first
// spellings, and drops exclude.
func recipients(addrs []string, exclude string) []string {
	seen := map[string]bool{}
	if ex := strings.ToLower(strings.TrimSpace(exclude)); ex != "" {
		seen[ex] = true
	}
	var out []string
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
