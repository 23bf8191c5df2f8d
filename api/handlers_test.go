package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"kapantask/domain"
)

func TestAnonymousRequestsRedirectToLogin(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	for _, path := range []string{"/", "/tasks/?status=overdue", "/departments/", "/email-config/"} {
		rec := c.get(path)
		expectRedirect(t, rec, "/accounts/login/?next="+url.QueryEscape(path))
	}
}

func TestLoginByEmailFollowsNext(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	rec := c.post("/accounts/login/?next=/tasks/", url.Values{"username": {"Driller@Example.com"}, "password": {"pw-driller"}})
	expectRedirect(t, rec, "/tasks/")
	expectStatus(t, c.get("/tasks/"), http.StatusOK)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	rec := c.post(loginPath, url.Values{"username": {"driller"}, "password": {"wrong"}})
	expectStatus(t, rec, http.StatusUnauthorized)
	resp := decode[loginResponse](t, rec)
	if resp.Errors["form"] == "" {
		t.Fatalf("expected form error, got %#v", resp.Errors)
	}
	expectRedirect(t, c.get("/"), "/accounts/login/?next=%2F")
}

func TestLoginIgnoresExternalNext(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	rec := c.post(loginPath, url.Values{"username": {"admin"}, "password": {"pw-admin"}, "next": {"//evil.example.com/"}})
	expectRedirect(t, rec, "/")
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	c := h.loggedIn(t, "admin")
	expectStatus(t, c.get("/"), http.StatusOK)

	expectRedirect(t, c.post("/accounts/logout/", nil), loginPath)
	expectRedirect(t, c.get("/"), "/accounts/login/?next=%2F")
}

func TestAdminDashboardCountsEveryDepartment(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.task(t, "late", h.dept, domain.StatusNew, now.Add(-time.Hour))
	h.task(t, "done", h.dept, domain.StatusCompleted, now.Add(-time.Hour))
	h.task(t, "busy", h.dept, domain.StatusInProgress, now.Add(time.Hour))

	rec := h.loggedIn(t, "admin").get("/")
	expectStatus(t, rec, http.StatusOK)
	resp := decode[dashboardResponse](t, rec)
	if !resp.IsAdmin {
		t.Fatalf("expected admin dashboard")
	}
	want := domain.TaskCounts{Total: 3, Completed: 1, InProgress: 1, Overdue: 1}
	if resp.Counts != want {
		t.Fatalf("unexpected counts %+v", resp.Counts)
	}
	if len(resp.Departments) != 2 {
		t.Fatalf("expected both departments, got %d", len(resp.Departments))
	}
	for _, d := range resp.Departments {
		if d.Department.ID == h.other.ID && d.Total != 0 {
			t.Fatalf("idle department should report zero tasks: %+v", d)
		}
	}
	if len(resp.Tasks) != 0 {
		t.Fatalf("admin dashboard should not list tasks")
	}
}

func TestMemberDashboardIsScopedToDepartment(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	mine := h.task(t, "mine", h.dept, domain.StatusNew, now.Add(-time.Hour))
	h.task(t, "theirs", h.other, domain.StatusNew, now.Add(-time.Hour))

	rec := h.loggedIn(t, "driller").get("/")
	expectStatus(t, rec, http.StatusOK)
	resp := decode[dashboardResponse](t, rec)
	if resp.Counts.Total != 1 || resp.Counts.Overdue != 1 {
		t.Fatalf("unexpected counts %+v", resp.Counts)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != mine.ID || !resp.Tasks[0].IsOverdue {
		t.Fatalf("unexpected tasks %#v", resp.Tasks)
	}
	if resp.Department == nil || resp.Department.ID != h.dept.ID {
		t.Fatalf("expected department in dashboard")
	}
	if len(resp.Departments) != 0 {
		t.Fatalf("member must not see department breakdown")
	}
}

func TestMemberWithoutDepartmentIsSignedOut(t *testing.T) {
	h := newHarness(t)
	c := h.loggedIn(t, "orphan")

	expectRedirect(t, c.get("/"), loginPath)

	page := decode[loginResponse](t, c.get(loginPath))
	if len(page.Messages) != 1 || page.Messages[0].Level != flashError || page.Messages[0].Message != noDepartmentMessage {
		t.Fatalf("expected department error flash, got %#v", page.Messages)
	}
	expectRedirect(t, c.get("/tasks/"), "/accounts/login/?next=%2Ftasks%2F")
}

func TestTaskListFilters(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.task(t, "late", h.dept, domain.StatusNew, now.Add(-time.Hour))
	h.task(t, "done", h.dept, domain.StatusCompleted, now.Add(-time.Hour))
	h.task(t, "busy", h.dept, domain.StatusInProgress, now.Add(time.Hour))
	h.task(t, "elsewhere", h.other, domain.StatusInProgress, now.Add(-time.Hour))

	member := h.loggedIn(t, "driller")
	cases := map[string][]string{
		"":            {"busy", "done", "late"},
		"completed":   {"done"},
		"in_progress": {"busy"},
		"overdue":     {"late"},
		"bogus":       {"busy", "done", "late"},
	}
	for filter, want := range cases {
		rec := member.get("/tasks/?status=" + filter)
		expectStatus(t, rec, http.StatusOK)
		resp := decode[taskListResponse](t, rec)
		if resp.StatusFilter != filter {
			t.Fatalf("status_filter not echoed: %q vs %q", resp.StatusFilter, filter)
		}
		if len(resp.Tasks) != len(want) {
			t.Fatalf("filter %q: expected %v got %d tasks", filter, want, len(resp.Tasks))
		}
		for i, title := range want {
			if resp.Tasks[i].Title != title {
				t.Fatalf("filter %q: position %d expected %q got %q", filter, i, title, resp.Tasks[i].Title)
			}
		}
	}

	all := decode[taskListResponse](t, h.loggedIn(t, "admin").get("/tasks/?status=in_progress"))
	if len(all.Tasks) != 2 {
		t.Fatalf("admin should see in-progress tasks of all departments, got %d", len(all.Tasks))
	}
}

func TestTaskDetailAccess(t *testing.T) {
	h := newHarness(t)
	foreign := h.task(t, "foreign", h.other, domain.StatusNew, h.clock.Now().Add(time.Hour))
	member := h.loggedIn(t, "driller")

	expectStatus(t, member.get("/tasks/"+strconv.FormatInt(foreign.ID, 10)+"/"), http.StatusForbidden)
	expectStatus(t, member.get("/tasks/9999/"), http.StatusNotFound)
	rec := member.post("/tasks/"+strconv.FormatInt(foreign.ID, 10)+"/", url.Values{"submit_comment": {""}, "content": {"hi"}})
	expectStatus(t, rec, http.StatusForbidden)
	if comments, _ := h.store.ListComments(context.Background(), foreign.ID); len(comments) != 0 {
		t.Fatalf("forbidden post must not persist")
	}
	expectStatus(t, h.loggedIn(t, "admin").get("/tasks/"+strconv.FormatInt(foreign.ID, 10)+"/"), http.StatusOK)
}

func TestCommentSubmission(t *testing.T) {
	h := newHarness(t)
	task := h.task(t, "pump", h.dept, domain.StatusNew, h.clock.Now().Add(time.Hour))
	member := h.loggedIn(t, "driller")
	path := taskURL(task.ID)

	rec := member.post(path, url.Values{"submit_comment": {""}, "content": {"   "}})
	expectStatus(t, rec, http.StatusBadRequest)
	if resp := decode[validationResponse](t, rec); resp.Errors["content"] == "" {
		t.Fatalf("expected content error, got %#v", resp.Errors)
	}
	if len(h.queue.Jobs()) != 0 {
		t.Fatalf("invalid comment must not enqueue anything")
	}

	expectRedirect(t, member.post(path, url.Values{"submit_comment": {""}, "content": {"Pressure is fine"}}), path)
	if names := h.jobNames(); len(names) != 1 || names[0] != domain.JobSendCommentNotification {
		t.Fatalf("expected one comment notification, got %v", names)
	}

	resp := decode[taskDetailResponse](t, member.get(path))
	if len(resp.Comments) != 1 || resp.Comments[0].Content != "Pressure is fine" || resp.Comments[0].Author.Username != "driller" {
		t.Fatalf("unexpected comments %#v", resp.Comments)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Message != "Comment added." {
		t.Fatalf("expected success flash, got %#v", resp.Messages)
	}
	again := decode[taskDetailResponse](t, member.get(path))
	if len(again.Messages) != 0 {
		t.Fatalf("flash should be shown once")
	}
}

func TestStatusSubmission(t *testing.T) {
	h := newHarness(t)
	task := h.task(t, "pump", h.dept, domain.StatusNew, h.clock.Now().Add(time.Hour))
	member := h.loggedIn(t, "driller")
	path := taskURL(task.ID)

	expectStatus(t, member.post(path, url.Values{"submit_status": {""}, "status": {"archived"}}), http.StatusBadRequest)
	expectRedirect(t, member.post(path, url.Values{"submit_status": {""}, "status": {"in_progress"}}), path)

	got, _ := h.store.GetTask(context.Background(), task.ID)
	if got.Status != domain.StatusInProgress {
		t.Fatalf("status not updated: %s", got.Status)
	}
	if len(h.queue.Jobs()) != 0 {
		t.Fatalf("status change must not notify")
	}
	expectStatus(t, member.post(path, url.Values{"content": {"x"}}), http.StatusBadRequest)
}

func TestTaskCreate(t *testing.T) {
	h := newHarness(t)
	form := url.Values{
		"title":       {"Inspect conveyor"},
		"description": {"Belt 3 squeaks"},
		"assigned_to": {strconv.FormatInt(h.dept.ID, 10)},
		"due_date":    {"2024-03-05T14:30"},
	}

	expectStatus(t, h.loggedIn(t, "driller").post("/tasks/create/", form), http.StatusForbidden)
	expectStatus(t, h.loggedIn(t, "driller").get("/tasks/create/"), http.StatusForbidden)

	admin := h.loggedIn(t, "admin")
	choices := decode[taskFormResponse](t, admin.get("/tasks/create/"))
	if len(choices.Departments) != 2 || len(choices.Statuses) != len(domain.Statuses) {
		t.Fatalf("unexpected form choices %#v", choices)
	}

	bad := url.Values{"title": {""}, "description": {"x"}, "assigned_to": {"999"}, "due_date": {"tomorrow"}}
	rec := admin.post("/tasks/create/", bad)
	expectStatus(t, rec, http.StatusBadRequest)
	errs := decode[validationResponse](t, rec).Errors
	if errs["title"] == "" || errs["due_date"] == "" {
		t.Fatalf("expected title and due_date errors, got %#v", errs)
	}
	missingDept := url.Values{"title": {"x"}, "description": {"x"}, "assigned_to": {"999"}, "due_date": {"2024-03-05T14:30"}}
	rec = admin.post("/tasks/create/", missingDept)
	expectStatus(t, rec, http.StatusBadRequest)
	if decode[validationResponse](t, rec).Errors["assigned_to"] == "" {
		t.Fatalf("expected assigned_to error")
	}
	if len(h.queue.Jobs()) != 0 {
		t.Fatalf("invalid submissions must not enqueue")
	}

	expectRedirect(t, admin.post("/tasks/create/", form), "/tasks/")
	tasks, _ := h.store.ListTasks(context.Background(), domain.TaskQuery{})
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	created := tasks[0]
	if created.Status != domain.StatusNew || created.AssignedByID != h.admin.ID {
		t.Fatalf("unexpected task %#v", created)
	}
	if !created.DueDate.Equal(time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date %v", created.DueDate)
	}
	if names := h.jobNames(); len(names) != 1 || names[0] != domain.JobSendTaskNotification {
		t.Fatalf("expected one task notification, got %v", names)
	}
}

func TestTaskCreateAcceptsJSON(t *testing.T) {
	h := newHarness(t)
	admin := h.loggedIn(t, "admin")
	body := `{"title":"Order fuel","description":"Diesel","status":"postponed","assigned_to":` +
		strconv.FormatInt(h.other.ID, 10) + `,"due_date":"2024-03-05T14:30:00+02:00"}`
	expectRedirect(t, admin.postJSON("/tasks/create/", body), "/tasks/")

	tasks, _ := h.store.ListTasks(context.Background(), domain.TaskQuery{})
	if len(tasks) != 1 || tasks[0].Status != domain.StatusPostponed || tasks[0].AssignedToID != h.other.ID {
		t.Fatalf("unexpected tasks %#v", tasks)
	}
	if !tasks[0].DueDate.Equal(time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("due date not normalized to UTC: %v", tasks[0].DueDate)
	}
}

func TestTaskEdit(t *testing.T) {
	h := newHarness(t)
	task := h.task(t, "pump", h.dept, domain.StatusNew, h.clock.Now().Add(time.Hour))
	editPath := taskURL(task.ID) + "edit/"
	member := h.loggedIn(t, "driller")

	expectStatus(t, member.get("/tasks/9999/edit/"), http.StatusNotFound)
	expectStatus(t, member.get(editPath), http.StatusForbidden)

	admin := h.loggedIn(t, "admin")
	doc := decode[taskFormResponse](t, admin.get(editPath))
	if doc.Task == nil || doc.Task.ID != task.ID {
		t.Fatalf("edit form should carry the task")
	}

	form := url.Values{
		"title":       {"pump station"},
		"description": {"moved"},
		"status":      {"completed"},
		"assigned_to": {strconv.FormatInt(h.other.ID, 10)},
		"due_date":    {"2024-04-01T08:00"},
	}
	expectRedirect(t, admin.post(editPath, form), taskURL(task.ID))
	got, _ := h.store.GetTask(context.Background(), task.ID)
	if got.Title != "pump station" || got.Status != domain.StatusCompleted || got.AssignedToID != h.other.ID {
		t.Fatalf("task not updated: %#v", got)
	}
	if len(h.queue.Jobs()) != 0 {
		t.Fatalf("editing must not notify")
	}
}

func TestDepartmentManagement(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.loggedIn(t, "driller").get("/departments/"), http.StatusForbidden)

	admin := h.loggedIn(t, "admin")
	rec := admin.post("/departments/create/", url.Values{"name": {"Survey"}, "email": {"not-an-email"}})
	expectStatus(t, rec, http.StatusBadRequest)
	if decode[validationResponse](t, rec).Errors["email"] == "" {
		t.Fatalf("expected email error")
	}
	rec = admin.post("/departments/create/", url.Values{"name": {"Survey"}, "email": {"drilling@example.com"}})
	expectStatus(t, rec, http.StatusBadRequest)

	expectRedirect(t, admin.post("/departments/create/", url.Values{"name": {"Survey"}, "email": {"survey@example.com"}}), departmentsPath)
	list := decode[departmentListResponse](t, admin.get(departmentsPath))
	if len(list.Departments) != 3 {
		t.Fatalf("expected three departments, got %d", len(list.Departments))
	}
	if len(list.Messages) != 1 || list.Messages[0].Level != flashSuccess {
		t.Fatalf("expected success flash, got %#v", list.Messages)
	}

	editPath := "/departments/" + strconv.FormatInt(h.other.ID, 10) + "/edit/"
	expectStatus(t, h.loggedIn(t, "driller").get(editPath), http.StatusForbidden)
	expectStatus(t, admin.get("/departments/9999/edit/"), http.StatusNotFound)
	expectRedirect(t, admin.post(editPath, url.Values{"name": {"Blasting & Loading"}, "email": {"blasting@example.com"}}), departmentsPath)
	got, _ := h.store.GetDepartment(context.Background(), h.other.ID)
	if got.Name != "Blasting & Loading" {
		t.Fatalf("department not renamed: %#v", got)
	}
}

func TestDepartmentDeleteCascadesTasks(t *testing.T) {
	h := newHarness(t)
	task := h.task(t, "doomed", h.other, domain.StatusNew, h.clock.Now())
	admin := h.loggedIn(t, "admin")

	expectStatus(t, h.loggedIn(t, "driller").post("/departments/"+strconv.FormatInt(h.other.ID, 10)+"/delete/", nil), http.StatusForbidden)
	expectRedirect(t, admin.post("/departments/"+strconv.FormatInt(h.other.ID, 10)+"/delete/", nil), departmentsPath)
	expectStatus(t, admin.get(taskURL(task.ID)), http.StatusNotFound)
}

func TestEmailConfigKeepsSingleActiveRow(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.loggedIn(t, "driller").get(emailConfigPath), http.StatusForbidden)

	admin := h.loggedIn(t, "admin")
	empty := decode[emailConfigResponse](t, admin.get(emailConfigPath))
	if empty.Config != nil {
		t.Fatalf("expected no configuration yet")
	}

	rec := admin.post(emailConfigPath, url.Values{"smtp_host": {"smtp.example.com"}, "smtp_port": {"70000"}, "from_email": {"x"}})
	expectStatus(t, rec, http.StatusBadRequest)
	errs := decode[validationResponse](t, rec).Errors
	if errs["smtp_port"] == "" || errs["from_email"] == "" {
		t.Fatalf("expected port and from errors, got %#v", errs)
	}

	first := url.Values{
		"smtp_host": {"smtp.example.com"}, "smtp_port": {"587"}, "smtp_user": {"mailer"},
		"smtp_password": {"secret"}, "use_tls": {"on"}, "from_email": {"tasks@example.com"},
	}
	expectRedirect(t, admin.post(emailConfigPath, first), emailConfigPath)
	second := url.Values{"smtp_host": {"relay.example.com"}, "smtp_port": {"25"}, "from_email": {"tasks@example.com"}}
	expectRedirect(t, admin.post(emailConfigPath, second), emailConfigPath)

	rec = admin.get(emailConfigPath)
	if body := rec.Body.String(); strings.Contains(body, "secret") {
		t.Fatalf("password leaked: %s", body)
	}
	doc := decode[emailConfigResponse](t, rec)
	if doc.Config == nil || doc.Config.SMTPHost != "relay.example.com" || !doc.Config.IsActive || doc.Config.UseTLS {
		t.Fatalf("unexpected config %#v", doc.Config)
	}
	if !doc.HasPassword {
		t.Fatalf("blank password should keep the stored one")
	}

	active, err := h.store.ActiveEmailConfig(context.Background())
	if err != nil {
		t.Fatalf("active config: %v", err)
	}
	if active.ID != doc.Config.ID || active.SMTPPassword != "secret" {
		t.Fatalf("expected the first row edited in place, got %#v", active)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.client(t).get("/healthz"), http.StatusOK)
}

// A task created by an admin becomes overdue once the clock passes its due
// date and stops being overdue when completed, without its due date changing.
func TestOverdueLifecycle(t *testing.T) {
	h := newHarness(t)
	admin := h.loggedIn(t, "admin")
	due := h.clock.Now().Add(time.Hour).Format("2006-01-02T15:04")
	expectRedirect(t, admin.post("/tasks/create/", url.Values{
		"title": {"Check valves"}, "description": {"Weekly"},
		"assigned_to": {strconv.FormatInt(h.dept.ID, 10)}, "due_date": {due},
	}), "/tasks/")

	member := h.loggedIn(t, "driller")
	if got := decode[taskListResponse](t, member.get("/tasks/?status=overdue")); len(got.Tasks) != 0 {
		t.Fatalf("task should not be overdue yet")
	}

	h.clock.Advance(2 * time.Hour)
	overdue := decode[taskListResponse](t, member.get("/tasks/?status=overdue"))
	if len(overdue.Tasks) != 1 || !overdue.Tasks[0].IsOverdue {
		t.Fatalf("expected one overdue task, got %#v", overdue.Tasks)
	}
	task := overdue.Tasks[0]
	if counts := decode[dashboardResponse](t, member.get("/")).Counts; counts.Overdue != 1 {
		t.Fatalf("dashboard should count the overdue task: %+v", counts)
	}

	expectRedirect(t, member.post(taskURL(task.ID), url.Values{"submit_status": {""}, "status": {"completed"}}), taskURL(task.ID))
	if got := decode[taskListResponse](t, member.get("/tasks/?status=overdue")); len(got.Tasks) != 0 {
		t.Fatalf("completed task must not be overdue")
	}
	detail := decode[taskDetailResponse](t, member.get(taskURL(task.ID)))
	if detail.Task.IsOverdue || !detail.Task.DueDate.Equal(task.DueDate) {
		t.Fatalf("unexpected task after completion %#v", detail.Task)
	}
}
