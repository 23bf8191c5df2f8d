package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kapantask/domain"
)

const (
	usersPath       = "/users/"
	usersAdminOnly  = "Only administrators can manage users."
	userNotFoundMsg = "user not found"
)

type userListResponse struct {
	Users    []userListItem `json:"users"`
	Messages []flashMessage `json:"messages"`
}

type userListItem struct {
	userView
	Department string `json:"department"`
}

type userFormResponse struct {
	Title       string              `json:"title"`
	User        *userView           `json:"user,omitempty"`
	Departments []domain.Department `json:"departments"`
	Messages    []flashMessage      `json:"messages"`
}

func userList(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, usersAdminOnly)
		}
		users, err := store.ListUsers(c.Request().Context())
		if err != nil {
			return serverError(c, err)
		}
		items := make([]userListItem, 0, len(users))
		for _, u := range users {
			item := userListItem{userView: newUserView(u)}
			if u.Department != nil {
				item.Department = u.Department.Name
			}
			items = append(items, item)
		}
		return c.JSON(http.StatusOK, userListResponse{Users: items, Messages: popFlashes(c)})
	}
}

func userFormPage(c echo.Context, store Storage, title string, u *domain.User) error {
	departments, err := store.ListDepartments(c.Request().Context())
	if err != nil {
		return serverError(c, err)
	}
	resp := userFormResponse{Title: title, Departments: departments, Messages: popFlashes(c)}
	if u != nil {
		v := newUserView(*u)
		resp.User = &v
	}
	return c.JSON(http.StatusOK, resp)
}

func userCreateForm(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, usersAdminOnly)
		}
		return userFormPage(c, store, "Create user", nil)
	}
}

func userCreate(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, usersAdminOnly)
		}
		form, ok, err := readUserForm(c, store, true)
		if !ok {
			return err
		}
		u := form.User
		if err := store.CreateUser(c.Request().Context(), &u, form.Password); err != nil {
			return userSaveError(c, err)
		}
		logger.WithFields(log.Fields{"user": u.Username, "by": currentUser(c).Username}).Info("user created")
		return redirectWithFlash(c, flashSuccess, "User created.", usersPath)
	}
}

// loadUser resolves the path user before the role check, like the other
// edit pages.
func loadUser(c echo.Context, store Storage) (domain.User, bool, error) {
	id, valid := pathID(c)
	if !valid {
		return domain.User{}, false, notFound(c, userNotFoundMsg)
	}
	u, err := store.GetUser(c.Request().Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return u, false, notFound(c, userNotFoundMsg)
	}
	if err != nil {
		return u, false, serverError(c, err)
	}
	if !currentUser(c).IsAdmin {
		return u, false, forbidden(c, usersAdminOnly)
	}
	return u, true, nil
}

func userEditForm(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		u, ok, err := loadUser(c, store)
		if !ok {
			return err
		}
		return userFormPage(c, store, "Edit user", &u)
	}
}

func userEdit(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		existing, ok, err := loadUser(c, store)
		if !ok {
			return err
		}
		form, ok, err := readUserForm(c, store, false)
		if !ok {
			return err
		}
		u := form.User
		u.ID = existing.ID
		if err := store.UpdateUser(c.Request().Context(), &u, form.Password); err != nil {
			return userSaveError(c, err)
		}
		logger.WithFields(log.Fields{"user": u.Username, "by": currentUser(c).Username}).Info("user updated")
		return redirectWithFlash(c, flashSuccess, "User updated.", usersPath)
	}
}

// readUserForm validates the body and checks that the chosen department
// exists. On failure the 400 response has already been written.
func readUserForm(c echo.Context, store Storage, creating bool) (userForm, bool, error) {
	vals, err := readForm(c)
	if err != nil {
		return userForm{}, false, c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
	}
	form, errs := parseUserForm(vals, creating)
	if len(errs) == 0 && form.User.DepartmentID != nil {
		_, err := store.GetDepartment(c.Request().Context(), *form.User.DepartmentID)
		if errors.Is(err, domain.ErrNotFound) {
			errs.add("department", "Select a valid choice.")
		} else if err != nil {
			return form, false, serverError(c, err)
		}
	}
	if len(errs) > 0 {
		return form, false, c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
	}
	return form, true, nil
}

func userSaveError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrConflict) {
		return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"username": "A user with that username already exists."}})
	}
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(c, userNotFoundMsg)
	}
	return serverError(c, err)
}
