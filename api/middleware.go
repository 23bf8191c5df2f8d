package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"kapantask/domain"
)

const contextUserKey = "user"

// requireUser resolves the signed-in user from a bearer token or the session
// cookie. Anonymous requests are redirected to the login page.
func requireUser(store Storage, auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" && auth != nil {
				username, err := auth.UsernameFromAuthHeader(header)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
				}
				user, err := store.GetUserByUsername(ctx, username)
				if errors.Is(err, domain.ErrNotFound) {
					return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unknown user"})
				}
				if err != nil {
					return err
				}
				c.Set(contextUserKey, user)
				return next(c)
			}

			sess, err := currentSession(c)
			if err != nil {
				return err
			}
			id, ok := sess.Values[sessionUserID].(int64)
			if !ok {
				return loginRedirect(c)
			}
			user, err := store.GetUser(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				if err := signOut(c); err != nil {
					c.Logger().Error(err)
				}
				return loginRedirect(c)
			}
			if err != nil {
				return err
			}
			c.Set(contextUserKey, user)
			return next(c)
		}
	}
}

func currentUser(c echo.Context) domain.User {
	u, _ := c.Get(contextUserKey).(domain.User)
	return u
}

const noDepartmentMessage = "Your account is not linked to a department. Contact an administrator."

// departmentScope returns the department filter for the current user: nil for
// administrators. For a non-admin without a department it signs the user out,
// writes the redirect and reports ok=false.
func departmentScope(c echo.Context, user domain.User) (scope *int64, ok bool, err error) {
	if user.IsAdmin {
		return nil, true, nil
	}
	if user.DepartmentID == nil {
		if err := signOut(c); err != nil {
			c.Logger().Error(err)
		}
		return nil, false, redirectWithFlash(c, flashError, noDepartmentMessage, loginPath)
	}
	id := *user.DepartmentID
	return &id, true, nil
}

func forbidden(c echo.Context, msg string) error {
	return c.JSON(http.StatusForbidden, errorResponse{Error: msg})
}

func notFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func serverError(c echo.Context, err error) error {
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

type errorResponse struct {
	Error string `json:"error"`
}
