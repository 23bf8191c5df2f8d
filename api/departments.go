package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"kapantask/domain"
)

const departmentsPath = "/departments/"

type departmentListResponse struct {
	Departments []domain.Department `json:"departments"`
	Messages    []flashMessage      `json:"messages"`
}

type departmentFormResponse struct {
	Title      string             `json:"title"`
	Department *domain.Department `json:"department,omitempty"`
	Messages   []flashMessage     `json:"messages"`
}

const departmentsAdminOnly = "Only administrators can manage departments."

func departmentList(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, departmentsAdminOnly)
		}
		departments, err := store.ListDepartments(c.Request().Context())
		if err != nil {
			return serverError(c, err)
		}
		return c.JSON(http.StatusOK, departmentListResponse{Departments: departments, Messages: popFlashes(c)})
	}
}

func departmentCreateForm() echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, departmentsAdminOnly)
		}
		return c.JSON(http.StatusOK, departmentFormResponse{Title: "Create department", Messages: popFlashes(c)})
	}
}

func departmentCreate(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, departmentsAdminOnly)
		}
		vals, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		d, errs := parseDepartmentForm(vals)
		if len(errs) > 0 {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
		}
		if err := store.CreateDepartment(c.Request().Context(), &d); err != nil {
			return departmentSaveError(c, err)
		}
		return redirectWithFlash(c, flashSuccess, "Department created.", departmentsPath)
	}
}

// loadDepartment resolves the path department before the role check, like
// the task edit page.
func loadDepartment(c echo.Context, store Storage) (domain.Department, bool, error) {
	id, valid := pathID(c)
	if !valid {
		return domain.Department{}, false, notFound(c, "department not found")
	}
	d, err := store.GetDepartment(c.Request().Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return d, false, notFound(c, "department not found")
	}
	if err != nil {
		return d, false, serverError(c, err)
	}
	if !currentUser(c).IsAdmin {
		return d, false, forbidden(c, departmentsAdminOnly)
	}
	return d, true, nil
}

func departmentEditForm(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		d, ok, err := loadDepartment(c, store)
		if !ok {
			return err
		}
		return c.JSON(http.StatusOK, departmentFormResponse{Title: "Edit department", Department: &d, Messages: popFlashes(c)})
	}
}

func departmentEdit(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		existing, ok, err := loadDepartment(c, store)
		if !ok {
			return err
		}
		vals, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		d, errs := parseDepartmentForm(vals)
		if len(errs) > 0 {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
		}
		d.ID = existing.ID
		if err := store.UpdateDepartment(c.Request().Context(), &d); err != nil {
			return departmentSaveError(c, err)
		}
		return redirectWithFlash(c, flashSuccess, "Department updated.", departmentsPath)
	}
}

// departmentDelete removes a department together with its tasks.
func departmentDelete(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		d, ok, err := loadDepartment(c, store)
		if !ok {
			return err
		}
		if err := store.DeleteDepartment(c.Request().Context(), d.ID); err != nil {
			return departmentSaveError(c, err)
		}
		return redirectWithFlash(c, flashSuccess, "Department deleted.", departmentsPath)
	}
}

func departmentSaveError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrConflict) {
		return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"email": "Department with this email already exists."}})
	}
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(c, "department not found")
	}
	return serverError(c, err)
}
