package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"kapantask/domain"
	"kapantask/jobs"
	"kapantask/storage"
)

const testJWTSecret = "jwt-test-secret"

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

type harness struct {
	e      *echo.Echo
	store  *storage.Store
	queue  *jobs.MemoryQueue
	clock  *fakeClock
	hook   *test.Hook
	admin  domain.User
	member domain.User
	orphan domain.User
	dept   domain.Department
	other  domain.Department
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger, hook := test.NewNullLogger()
	queue := jobs.NewMemoryQueue()
	store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"), storage.Options{Now: clock.Now, Enqueuer: queue, Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{store: store, queue: queue, clock: clock, hook: hook}
	h.dept = domain.Department{Name: "Drilling", Email: "drilling@example.com"}
	h.other = domain.Department{Name: "Blasting", Email: "blasting@example.com"}
	for _, d := range []*domain.Department{&h.dept, &h.other} {
		if err := store.CreateDepartment(ctx, d); err != nil {
			t.Fatalf("department: %v", err)
		}
	}
	deptID := h.dept.ID
	h.admin = domain.User{Username: "admin", Email: "admin@example.com", IsAdmin: true}
	h.member = domain.User{Username: "driller", Email: "driller@example.com", DepartmentID: &deptID}
	h.orphan = domain.User{Username: "orphan", Email: "orphan@example.com"}
	for _, u := range []*domain.User{&h.admin, &h.member, &h.orphan} {
		if err := store.CreateUser(ctx, u, "pw-"+u.Username); err != nil {
			t.Fatalf("user: %v", err)
		}
	}

	h.e = echo.New()
	auth := NewAuth(nil, []byte(testJWTSecret), "", "", 0)
	Register(h.e, store, auth, NewSessionStore([]byte("0123456789abcdef0123456789abcdef"), false), logger, clock.Now)
	return h
}

// task inserts a task directly and drains the resulting notification job.
func (h *harness) task(t *testing.T, title string, dept domain.Department, status domain.Status, due time.Time) domain.Task {
	t.Helper()
	task := domain.Task{
		Title:        title,
		Description:  title,
		Status:       status,
		AssignedToID: dept.ID,
		AssignedByID: h.admin.ID,
		DueDate:      due,
	}
	if err := h.store.CreateTask(context.Background(), &task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	h.clock.Advance(time.Minute)
	h.drain()
	return task
}

func (h *harness) drain() {
	for {
		d, _ := h.queue.Receive(context.Background())
		if d == nil {
			return
		}
		_ = h.queue.Ack(context.Background(), d)
	}
}

func (h *harness) jobNames() []string {
	var out []string
	for _, j := range h.queue.Jobs() {
		out = append(out, j.Name)
	}
	return out
}

// client carries session cookies between requests.
type client struct {
	t       *testing.T
	h       *harness
	cookies map[string]*http.Cookie
	bearer  string
}

func (h *harness) client(t *testing.T) *client {
	return &client{t: t, h: h, cookies: map[string]*http.Cookie{}}
}

func (h *harness) loggedIn(t *testing.T, username string) *client {
	t.Helper()
	c := h.client(t)
	rec := c.post(loginPath, url.Values{"username": {username}, "password": {"pw-" + username}})
	if rec.Code != http.StatusFound {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	return c
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.bearer)
	}
	rec := httptest.NewRecorder()
	c.h.e.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return c.do(req)
}

func (c *client) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return c.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	expectStatus(t, rec, http.StatusFound)
	if got := rec.Header().Get(echo.HeaderLocation); got != location {
		t.Fatalf("expected redirect to %q got %q", location, got)
	}
}
