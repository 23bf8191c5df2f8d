package api

import (
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kapantask/domain"
)

const maxFormSize = 1 << 20

// dueDateLayouts are accepted for due_date; the first matches an HTML
// datetime-local input and is read as UTC.
var dueDateLayouts = []string{"2006-01-02T15:04", time.RFC3339}

type validationResponse struct {
	Errors map[string]string `json:"errors"`
}

// readForm returns submitted fields from a urlencoded, multipart or JSON body.
// JSON scalars are converted to their string form so both encodings validate
// the same way.
func readForm(c echo.Context) (url.Values, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		raw := map[string]any{}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxFormSize))
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			if err := sonic.Unmarshal(body, &raw); err != nil {
				return nil, err
			}
		}
		vals := url.Values{}
		for k, v := range raw {
			switch t := v.(type) {
			case nil:
				vals.Set(k, "")
			case string:
				vals.Set(k, t)
			case bool:
				vals.Set(k, strconv.FormatBool(t))
			default:
				vals.Set(k, fmt.Sprint(t))
			}
		}
		return vals, nil
	}
	return c.FormParams()
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) required(vals url.Values, field string, maxLen int) string {
	v := strings.TrimSpace(vals.Get(field))
	if v == "" {
		f.add(field, "This field is required.")
		return ""
	}
	if maxLen > 0 && len([]rune(v)) > maxLen {
		f.add(field, fmt.Sprintf("Ensure this value has at most %d characters.", maxLen))
	}
	return v
}

func (f fieldErrors) email(vals url.Values, field string, required bool) string {
	v := strings.TrimSpace(vals.Get(field))
	if v == "" {
		if required {
			f.add(field, "This field is required.")
		}
		return ""
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		f.add(field, "Enter a valid email address.")
	}
	return v
}

func (f fieldErrors) int64ID(vals url.Values, field string) int64 {
	v := strings.TrimSpace(vals.Get(field))
	if v == "" {
		f.add(field, "This field is required.")
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		f.add(field, "Select a valid choice.")
		return 0
	}
	return id
}

func (f fieldErrors) status(vals url.Values, field string, def domain.Status) domain.Status {
	v := strings.TrimSpace(vals.Get(field))
	if v == "" {
		if def == "" {
			f.add(field, "This field is required.")
		}
		return def
	}
	s, err := domain.ParseStatus(v)
	if err != nil {
		f.add(field, "Select a valid choice.")
	}
	return s
}

func (f fieldErrors) dueDate(vals url.Values, field string) time.Time {
	v := strings.TrimSpace(vals.Get(field))
	if v == "" {
		f.add(field, "This field is required.")
		return time.Time{}
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC()
		}
	}
	f.add(field, "Enter a valid date/time.")
	return time.Time{}
}

func (f fieldErrors) port(vals url.Values, field string) int {
	v := strings.TrimSpace(vals.Get(field))
	if v == "" {
		f.add(field, "This field is required.")
		return 0
	}
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		f.add(field, "Enter a whole number between 1 and 65535.")
		return 0
	}
	return p
}

func checkbox(vals url.Values, field string) bool {
	v := strings.ToLower(strings.TrimSpace(vals.Get(field)))
	switch v {
	case "on", "yes":
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func has(vals url.Values, field string) bool {
	_, ok := vals[field]
	return ok
}

// taskForm holds the validated task fields.
type taskForm struct {
	Title        string
	Description  string
	Status       domain.Status
	AssignedToID int64
	DueDate      time.Time
}

func parseTaskForm(vals url.Values) (taskForm, fieldErrors) {
	errs := fieldErrors{}
	form := taskForm{
		Title:        errs.required(vals, "title", 200),
		Description:  errs.required(vals, "description", 0),
		Status:       errs.status(vals, "status", domain.StatusNew),
		AssignedToID: errs.int64ID(vals, "assigned_to"),
		DueDate:      errs.dueDate(vals, "due_date"),
	}
	return form, errs
}

func parseDepartmentForm(vals url.Values) (domain.Department, fieldErrors) {
	errs := fieldErrors{}
	d := domain.Department{
		Name:  errs.required(vals, "name", 100),
		Email: errs.email(vals, "email", true),
	}
	return d, errs
}

func parseEmailConfigForm(vals url.Values) (domain.EmailConfiguration, fieldErrors) {
	errs := fieldErrors{}
	cfg := domain.EmailConfiguration{
		SMTPHost:     errs.required(vals, "smtp_host", 100),
		SMTPPort:     errs.port(vals, "smtp_port"),
		SMTPUser:     strings.TrimSpace(vals.Get("smtp_user")),
		SMTPPassword: vals.Get("smtp_password"),
		UseTLS:       checkbox(vals, "use_tls"),
		FromEmail:    errs.email(vals, "from_email", true),
	}
	return cfg, errs
}

const minPasswordLength = 8

// userForm holds the validated account fields. DepartmentID is nil when no
// department was chosen.
type userForm struct {
	User     domain.User
	Password string
}

// parseUserForm validates an account form. The password pair is required
// when creating and optional when editing.
func parseUserForm(vals url.Values, creating bool) (userForm, fieldErrors) {
	errs := fieldErrors{}
	form := userForm{User: domain.User{
		Username:  errs.required(vals, "username", 150),
		Email:     errs.email(vals, "email", false),
		FirstName: strings.TrimSpace(vals.Get("first_name")),
		LastName:  strings.TrimSpace(vals.Get("last_name")),
		IsAdmin:   checkbox(vals, "is_admin"),
	}}
	if len([]rune(form.User.FirstName)) > 150 {
		errs.add("first_name", "Ensure this value has at most 150 characters.")
	}
	if len([]rune(form.User.LastName)) > 150 {
		errs.add("last_name", "Ensure this value has at most 150 characters.")
	}
	if strings.TrimSpace(vals.Get("department")) != "" {
		id := errs.int64ID(vals, "department")
		if id > 0 {
			form.User.DepartmentID = &id
		}
	}

	p1, p2 := vals.Get("password1"), vals.Get("password2")
	switch {
	case p1 == "" && p2 == "":
		if creating {
			errs.add("password1", "This field is required.")
		}
	case p1 != p2:
		errs.add("password2", "The two password fields didn't match.")
	case len([]rune(p1)) < minPasswordLength:
		errs.add("password1", fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLength))
	default:
		form.Password = p1
	}
	return form, errs
}
