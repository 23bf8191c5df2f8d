package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"kapantask/domain"
	"kapantask/jobs"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingEnqueuer) snapshot() []jobs.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.Job(nil), r.jobs...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *Store
	enqueuer *recordingEnqueuer
	clock    *fakeClock
	admin    domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	enq := &recordingEnqueuer{}
	logger, _ := test.NewNullLogger()
	store, err := Open(filepath.Join(t.TempDir(), "kapantask.db"), Options{Now: clock.Now, Enqueuer: enq, Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	admin := domain.User{Username: "admin", Email: "admin@example.com", IsAdmin: true}
	if err := store.CreateUser(context.Background(), &admin, "admin-pass"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return &fixture{store: store, enqueuer: enq, clock: clock, admin: admin}
}

func (f *fixture) department(t *testing.T, name, email string) domain.Department {
	t.Helper()
	d := domain.Department{Name: name, Email: email}
	if err := f.store.CreateDepartment(context.Background(), &d); err != nil {
		t.Fatalf("create department %s: %v", name, err)
	}
	return d
}

func (f *fixture) member(t *testing.T, username string, dept domain.Department) domain.User {
	t.Helper()
	id := dept.ID
	u := domain.User{Username: username, Email: username + "@example.com", DepartmentID: &id}
	if err := f.store.CreateUser(context.Background(), &u, "pass-"+username); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func (f *fixture) task(t *testing.T, title string, dept domain.Department, status domain.Status, due time.Time) domain.Task {
	t.Helper()
	task := domain.Task{
		Title:        title,
		Description:  title + " description",
		Status:       status,
		AssignedToID: dept.ID,
		AssignedByID: f.admin.ID,
		DueDate:      due,
	}
	if err := f.store.CreateTask(context.Background(), &task); err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	f.clock.Advance(time.Minute)
	return task
}

// updateComment edits a comment through gorm's update chain, which the
// notification hooks never observe.
func (s *Store) updateComment(ctx context.Context, id int64, content string) error {
	res := s.db.WithContext(ctx).Model(&domain.Comment{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
