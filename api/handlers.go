// Package api serves the task tracker over HTTP. Every page answers with the
// JSON document a template would have rendered.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// Register wires up all routes on the provided Echo instance. now is the
// clock used to compute overdue flags.
func Register(e *echo.Echo, store Storage, auth Authenticator, sessionStore sessions.Store, logger *log.Logger, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.JSONSerializer = sonicSerializer{}
	e.Use(metricsMiddleware(logger))
	e.Use(session.Middleware(sessionStore))

	e.GET("/healthz", healthz(store))
	e.GET(loginPath, loginPage())
	e.POST(loginPath, login(store, logger))
	e.POST("/accounts/logout/", logout())

	g := e.Group("", requireUser(store, auth))
	g.GET("/", dashboard(store, now))
	g.GET("/tasks/", taskList(store, now))
	g.GET("/tasks/create/", taskCreateForm(store))
	g.POST("/tasks/create/", taskCreate(store))
	g.GET("/tasks/:id/", taskDetail(store, now))
	g.POST("/tasks/:id/", taskDetailPost(store))
	g.GET("/tasks/:id/edit/", taskEditForm(store, now))
	g.POST("/tasks/:id/edit/", taskEdit(store))
	g.GET("/departments/", departmentList(store))
	g.GET("/departments/create/", departmentCreateForm())
	g.POST("/departments/create/", departmentCreate(store))
	g.GET("/departments/:id/edit/", departmentEditForm(store))
	g.POST("/departments/:id/edit/", departmentEdit(store))
	g.POST("/departments/:id/delete/", departmentDelete(store))
	g.GET("/users/", userList(store))
	g.GET("/users/create/", userCreateForm(store))
	g.POST("/users/create/", userCreate(store, logger))
	g.GET("/users/:id/edit/", userEditForm(store))
	g.POST("/users/:id/edit/", userEdit(store, logger))
	g.GET("/email-config/", emailConfigForm(store))
	g.POST("/email-config/", emailConfigSave(store, logger))
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
