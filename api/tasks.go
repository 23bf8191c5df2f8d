package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"kapantask/domain"
)

type taskListResponse struct {
	Tasks        []taskView     `json:"tasks"`
	StatusFilter string         `json:"status_filter"`
	Messages     []flashMessage `json:"messages"`
}

func taskList(store Storage, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := currentUser(c)
		scope, ok, err := departmentScope(c, user)
		if !ok {
			return err
		}
		statusFilter := c.QueryParam("status")
		tasks, err := store.ListTasks(c.Request().Context(), domain.TaskQuery{
			DepartmentID: scope,
			Filter:       domain.ParseTaskFilter(statusFilter),
		})
		if err != nil {
			return serverError(c, err)
		}
		return c.JSON(http.StatusOK, taskListResponse{
			Tasks:        newTaskViews(tasks, now()),
			StatusFilter: statusFilter,
			Messages:     popFlashes(c),
		})
	}
}

func taskURL(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10) + "/"
}

// loadTask fetches the task named in the path and checks department access.
// It writes the error response itself when ok is false.
func loadTask(c echo.Context, store Storage) (task domain.Task, ok bool, err error) {
	id, valid := pathID(c)
	if !valid {
		return task, false, notFound(c, "task not found")
	}
	task, err = store.GetTask(c.Request().Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return task, false, notFound(c, "task not found")
	}
	if err != nil {
		return task, false, serverError(c, err)
	}
	if !currentUser(c).CanAccess(task.AssignedToID) {
		return task, false, forbidden(c, "You do not have access to this task.")
	}
	return task, true, nil
}

type taskDetailResponse struct {
	Task     taskView       `json:"task"`
	Comments []commentView  `json:"comments"`
	Statuses []choice       `json:"statuses"`
	Messages []flashMessage `json:"messages"`
}

func taskDetailDocument(c echo.Context, store Storage, task domain.Task, now time.Time) (taskDetailResponse, error) {
	comments, err := store.ListComments(c.Request().Context(), task.ID)
	if err != nil {
		return taskDetailResponse{}, err
	}
	return taskDetailResponse{
		Task:     newTaskView(task, now),
		Comments: newCommentViews(comments),
		Statuses: statusChoices(),
		Messages: popFlashes(c),
	}, nil
}

func taskDetail(store Storage, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok, err := loadTask(c, store)
		if !ok {
			return err
		}
		doc, err := taskDetailDocument(c, store, task, now())
		if err != nil {
			return serverError(c, err)
		}
		return c.JSON(http.StatusOK, doc)
	}
}

// taskDetailPost handles the comment and status forms of the detail page.
// A comment submission wins when both markers are present.
func taskDetailPost(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok, err := loadTask(c, store)
		if !ok {
			return err
		}
		vals, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		ctx := c.Request().Context()
		errs := fieldErrors{}

		switch {
		case has(vals, "submit_comment"):
			content := errs.required(vals, "content", 0)
			if len(errs) > 0 {
				return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
			}
			comment := domain.Comment{TaskID: task.ID, UserID: currentUser(c).ID, Content: content}
			if err := store.CreateComment(ctx, &comment); err != nil {
				return serverError(c, err)
			}
			return redirectWithFlash(c, flashSuccess, "Comment added.", taskURL(task.ID))

		case has(vals, "submit_status"):
			status := errs.status(vals, "status", "")
			if len(errs) > 0 {
				return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
			}
			if err := store.UpdateTaskStatus(ctx, task.ID, status); err != nil {
				return serverError(c, err)
			}
			return redirectWithFlash(c, flashSuccess, "Task status updated.", taskURL(task.ID))
		}
		errs.add("form", "Submit either a comment or a status update.")
		return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
	}
}

type taskFormResponse struct {
	Title       string              `json:"title"`
	Task        *taskView           `json:"task,omitempty"`
	Departments []domain.Department `json:"departments"`
	Statuses    []choice            `json:"statuses"`
	Messages    []flashMessage      `json:"messages"`
}

func taskFormDocument(c echo.Context, store Storage, title string, task *taskView) (taskFormResponse, error) {
	departments, err := store.ListDepartments(c.Request().Context())
	if err != nil {
		return taskFormResponse{}, err
	}
	return taskFormResponse{
		Title:       title,
		Task:        task,
		Departments: departments,
		Statuses:    statusChoices(),
		Messages:    popFlashes(c),
	}, nil
}

func taskCreateForm(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, "Only administrators can create tasks.")
		}
		doc, err := taskFormDocument(c, store, "Create task", nil)
		if err != nil {
			return serverError(c, err)
		}
		return c.JSON(http.StatusOK, doc)
	}
}

func taskCreate(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := currentUser(c)
		if !user.IsAdmin {
			return forbidden(c, "Only administrators can create tasks.")
		}
		vals, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		form, errs := parseTaskForm(vals)
		if len(errs) > 0 {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
		}
		task := domain.Task{
			Title:        form.Title,
			Description:  form.Description,
			Status:       form.Status,
			AssignedToID: form.AssignedToID,
			AssignedByID: user.ID,
			DueDate:      form.DueDate,
		}
		err = store.CreateTask(c.Request().Context(), &task)
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"assigned_to": "Select a valid choice."}})
		}
		if err != nil {
			return serverError(c, err)
		}
		return redirectWithFlash(c, flashSuccess, "Task created.", "/tasks/")
	}
}

func taskEditForm(store Storage, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok, err := loadTaskForEdit(c, store)
		if !ok {
			return err
		}
		view := newTaskView(task, now())
		doc, err := taskFormDocument(c, store, "Edit task", &view)
		if err != nil {
			return serverError(c, err)
		}
		return c.JSON(http.StatusOK, doc)
	}
}

func taskEdit(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok, err := loadTaskForEdit(c, store)
		if !ok {
			return err
		}
		vals, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		form, errs := parseTaskForm(vals)
		if strings.TrimSpace(vals.Get("status")) == "" {
			form.Status = task.Status
		}
		if len(errs) > 0 {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
		}
		task.Title = form.Title
		task.Description = form.Description
		task.Status = form.Status
		task.AssignedToID = form.AssignedToID
		task.DueDate = form.DueDate
		err = store.UpdateTask(c.Request().Context(), &task)
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"assigned_to": "Select a valid choice."}})
		}
		if err != nil {
			return serverError(c, err)
		}
		return redirectWithFlash(c, flashSuccess, "Task updated.", taskURL(task.ID))
	}
}

// loadTaskForEdit looks the task up before checking the admin role, so a
// missing task is a 404 for everyone.
func loadTaskForEdit(c echo.Context, store Storage) (domain.Task, bool, error) {
	id, valid := pathID(c)
	if !valid {
		return domain.Task{}, false, notFound(c, "task not found")
	}
	task, err := store.GetTask(c.Request().Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return task, false, notFound(c, "task not found")
	}
	if err != nil {
		return task, false, serverError(c, err)
	}
	if !currentUser(c).IsAdmin {
		return task, false, forbidden(c, "Only administrators can edit tasks.")
	}
	return task, true, nil
}
