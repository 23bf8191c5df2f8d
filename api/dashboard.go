package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"kapantask/domain"
)

type dashboardResponse struct {
	User        userView                  `json:"user"`
	IsAdmin     bool                      `json:"is_admin"`
	Counts      domain.TaskCounts         `json:"counts"`
	Departments []domain.DepartmentCounts `json:"department_stats,omitempty"`
	Department  *domain.Department        `json:"department,omitempty"`
	Tasks       []taskView                `json:"tasks,omitempty"`
	Messages    []flashMessage            `json:"messages"`
}

func dashboard(store Storage, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		user := currentUser(c)
		scope, ok, err := departmentScope(c, user)
		if !ok {
			return err
		}

		counts, err := store.CountTasks(ctx, scope)
		if err != nil {
			return serverError(c, err)
		}
		resp := dashboardResponse{User: newUserView(user), IsAdmin: user.IsAdmin, Counts: counts}

		if user.IsAdmin {
			resp.Departments, err = store.CountTasksByDepartment(ctx)
			if err != nil {
				return serverError(c, err)
			}
		} else {
			resp.Department = user.Department
			tasks, err := store.ListTasks(ctx, domain.TaskQuery{DepartmentID: scope})
			if err != nil {
				return serverError(c, err)
			}
			resp.Tasks = newTaskViews(tasks, now())
		}
		resp.Messages = popFlashes(c)
		return c.JSON(http.StatusOK, resp)
	}
}
