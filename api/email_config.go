package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kapantask/domain"
)

const emailConfigPath = "/email-config/"

type emailConfigResponse struct {
	Config      *domain.EmailConfiguration `json:"config"`
	HasPassword bool                       `json:"has_password"`
	Messages    []flashMessage             `json:"messages"`
}

const emailConfigAdminOnly = "Only administrators can change email settings."

func emailConfigForm(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, emailConfigAdminOnly)
		}
		resp := emailConfigResponse{}
		cfg, err := store.CurrentEmailConfig(c.Request().Context())
		switch {
		case err == nil:
			resp.Config = &cfg
			resp.HasPassword = cfg.SMTPPassword != ""
		case !errors.Is(err, domain.ErrNotFound):
			return serverError(c, err)
		}
		resp.Messages = popFlashes(c)
		return c.JSON(http.StatusOK, resp)
	}
}

// emailConfigSave edits the first stored configuration in place, or creates
// one, and makes it the only active configuration. A blank password keeps the
// stored one.
func emailConfigSave(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return forbidden(c, emailConfigAdminOnly)
		}
		ctx := c.Request().Context()
		vals, err := readForm(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: map[string]string{"form": "invalid body"}})
		}
		cfg, errs := parseEmailConfigForm(vals)
		if len(errs) > 0 {
			return c.JSON(http.StatusBadRequest, validationResponse{Errors: errs})
		}

		existing, err := store.CurrentEmailConfig(ctx)
		switch {
		case err == nil:
			cfg.ID = existing.ID
			if cfg.SMTPPassword == "" {
				cfg.SMTPPassword = existing.SMTPPassword
			}
		case !errors.Is(err, domain.ErrNotFound):
			return serverError(c, err)
		}

		if err := store.ActivateEmailConfig(ctx, &cfg); err != nil {
			return serverError(c, err)
		}
		logger.WithFields(log.Fields{"host": cfg.SMTPHost, "port": cfg.SMTPPort, "by": currentUser(c).Username}).Info("email configuration activated")
		return redirectWithFlash(c, flashSuccess, "Email settings saved.", emailConfigPath)
	}
}
