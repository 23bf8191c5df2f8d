package storage

import (
	"context"

	"gorm.io/gorm"

	"kapantask/domain"
)

// CurrentEmailConfig returns the first stored configuration, active or not.
func (s *Store) CurrentEmailConfig(ctx context.Context) (domain.EmailConfiguration, error) {
	var cfg domain.EmailConfiguration
	err := s.db.WithContext(ctx).Order("id").First(&cfg).Error
	return cfg, translate(err)
}

// ActiveEmailConfig returns the configuration used for outbound mail.
func (s *Store) ActiveEmailConfig(ctx context.Context) (domain.EmailConfiguration, error) {
	var cfg domain.EmailConfiguration
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").First(&cfg).Error
	return cfg, translate(err)
}

// ActivateEmailConfig deactivates every stored configuration and saves cfg
// as the only active one. cfg is inserted when its ID is zero and updated in
// place otherwise.
func (s *Store) ActivateEmailConfig(ctx context.Context, cfg *domain.EmailConfiguration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.EmailConfiguration{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		cfg.IsActive = true
		if cfg.ID == 0 {
			return tx.Create(cfg).Error
		}
		res := tx.Model(&domain.EmailConfiguration{}).Where("id = ?", cfg.ID).Updates(map[string]any{
			"smtp_host":     cfg.SMTPHost,
			"smtp_port":     cfg.SMTPPort,
			"smtp_user":     cfg.SMTPUser,
			"smtp_password": cfg.SMTPPassword,
			"use_tls":       cfg.UseTLS,
			"from_email":    cfg.FromEmail,
			"is_active":     true,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}
