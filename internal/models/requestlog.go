package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents a logged API request and how admission treated it
type RequestLog struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Timestamp       time.Time  `gorm:"index" json:"timestamp"`
	UserID          *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Method          string     `json:"method"`
	Path            string     `gorm:"index" json:"path"`
	StatusCode      int        `gorm:"index" json:"status_code"`
	ResponseTimeMs  int        `json:"response_time_ms"`
	IPAddress       string     `json:"ip_address"`
	UserAgent       string     `json:"user_agent"`
	Tier            string     `gorm:"size:16" json:"tier,omitempty"`
	AdmissionReason string     `gorm:"size:32;index" json:"admission_reason,omitempty"`
	BackendServer   string     `json:"backend_server,omitempty"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
