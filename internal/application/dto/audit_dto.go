package dto

import "time"

// AuditLogResponse entrada de auditoría.
type AuditLogResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Changes    map[string]any `json:"changes,omitempty"`
	Previous   map[string]any `json:"previous,omitempty"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
}
