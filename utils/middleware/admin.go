package middleware

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/cohort-lms/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminAuditLog records an audit row for a mutating admin action.
// It runs after the handler so the final status code is captured.
func AdminAuditLog(db *gorm.DB, log *zap.Logger, action, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminUser, ok := GetUser(c)
		if !ok || db == nil {
			return c.Next()
		}

		err := c.Next()

		// fiber reuses the ctx after return, copy what the goroutine needs
		entry := model.AdminAuditLog{
			AdminID:     adminUser.ID,
			Action:      action,
			Resource:    resource,
			ResourceID:  c.Params("id"),
			Payload:     auditPayload(c.Body()),
			StatusCode:  c.Response().StatusCode(),
			IPAddress:   c.IP(),
			UserAgent:   c.Get(fiber.HeaderUserAgent),
			Description: c.Method() + " " + c.OriginalURL(),
		}

		go func() {
			if err := db.Create(&entry).Error; err != nil && log != nil {
				log.Warn("failed to write admin audit log", zap.String("action", action), zap.Error(err))
			}
		}()

		return err
	}
}

// auditPayload keeps the request body only when it is valid JSON
func auditPayload(body []byte) datatypes.JSON {
	if len(body) == 0 || !json.Valid(body) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(append([]byte(nil), body...))
}
