package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kapantask/domain"
)

const (
	sessionName   = "kapantask"
	sessionUserID = "user_id"
	loginPath     = "/accounts/login/"

	flashSuccess = "success"
	flashError   = "error"
)

// NewSessionStore returns a cookie-backed session store signed with secret.
func NewSessionStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   14 * 24 * 3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

type flashMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// currentSession returns the request session. A cookie that no longer
// decodes (e.g. after a key rotation) yields a fresh session.
func currentSession(c echo.Context) (*sessions.Session, error) {
	sess, err := session.Get(sessionName, c)
	if err != nil && sess != nil {
		return sess, nil
	}
	return sess, err
}

func addFlash(c echo.Context, level, msg string) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	sess.AddFlash(msg, level)
	return sess.Save(c.Request(), c.Response())
}

// popFlashes drains pending messages. Bearer clients without a session get
// an empty list.
func popFlashes(c echo.Context) []flashMessage {
	sess, err := currentSession(c)
	if err != nil {
		return []flashMessage{}
	}
	out := []flashMessage{}
	for _, level := range []string{flashSuccess, flashError} {
		for _, f := range sess.Flashes(level) {
			if msg, ok := f.(string); ok {
				out = append(out, flashMessage{Level: level, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			c.Logger().Error(err)
		}
	}
	return out
}

// redirectWithFlash stores msg and answers 302 to location.
func redirectWithFlash(c echo.Context, level, msg, location string) error {
	if err := addFlash(c, level, msg); err != nil {
		c.Logger().Error(err)
	}
	return c.Redirect(http.StatusFound, location)
}

// signOut forgets the signed-in user but keeps the session so flashes survive.
func signOut(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	delete(sess.Values, sessionUserID)
	return sess.Save(c.Request(), c.Response())
}

func loginRedirect(c echo.Context) error {
	next := c.Request().URL.RequestURI()
	return c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(next))
}

// safeNext keeps only local absolute paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

type loginResponse struct {
	Next     string            `json:"next"`
	Errors   map[string]string `json:"errors,omitempty"`
	Messages []flashMessage    `json:"messages"`
}

func loginPage() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, loginResponse{Next: safeNext(c.QueryParam("next")), Messages: popFlashes(c)})
	}
}

func login(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		form, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		next := form.Get("next")
		if next == "" {
			next = c.QueryParam("next")
		}
		next = safeNext(next)

		user, err := store.Authenticate(c.Request().Context(), form.Get("username"), form.Get("password"))
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, loginResponse{
				Next:     next,
				Errors:   map[string]string{"form": "Please enter a correct username or email and password."},
				Messages: []flashMessage{},
			})
		}
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed"})
		}

		sess, err := currentSession(c)
		if err != nil {
			return err
		}
		sess.Values[sessionUserID] = user.ID
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return err
		}
		logger.WithFields(log.Fields{"user": user.Username}).Info("user signed in")
		return c.Redirect(http.StatusFound, next)
	}
}

func logout() echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := currentSession(c)
		if err != nil {
			return err
		}
		sess.Values = map[any]any{}
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return err
		}
		return c.Redirect(http.StatusFound, loginPath)
	}
}
