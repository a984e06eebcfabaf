package model

import (
	"time"

	"gorm.io/datatypes"
)

// AdminAuditLog records a mutating admin action
type AdminAuditLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	AdminID     string         `gorm:"type:varchar(64);not null;index" json:"admin_id"`
	Action      string         `gorm:"type:varchar(100);not null" json:"action"` // e.g., "assign_students", "dedupe_videos"
	Resource    string         `gorm:"type:varchar(100)" json:"resource"`        // e.g., "batches", "videos"
	ResourceID  string         `gorm:"type:varchar(64)" json:"resource_id"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	StatusCode  int            `json:"status_code"`
	IPAddress   string         `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent   string         `gorm:"type:text" json:"user_agent"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName specifies the table name for AdminAuditLog
func (AdminAuditLog) TableName() string {
	return "admin_audit_logs"
}
