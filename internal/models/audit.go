package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ApprovalAuditLog represents an audit trail entry
type ApprovalAuditLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RequestID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"requestId"`
	TenantID      string         `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	EventType     string         `gorm:"type:varchar(50);not null;index" json:"eventType"`
	ActorID       *uuid.UUID     `gorm:"type:uuid" json:"actorId,omitempty"`
	ActorRole     string         `gorm:"type:varchar(50)" json:"actorRole,omitempty"`
	PreviousState datatypes.JSON `gorm:"type:jsonb" json:"previousState,omitempty"`
	NewState      datatypes.JSON `gorm:"type:jsonb" json:"newState,omitempty"`
	Metadata      datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for ApprovalAuditLog
func (ApprovalAuditLog) TableName() string {
	return "approval_audit_log"
}

// AuditEventType constants
const (
	AuditEventCreated           = "created"
	AuditEventAutoApproved      = "auto_approved"
	AuditEventApproved          = "approved"
	AuditEventRejected          = "rejected"
	AuditEventEscalated         = "escalated"
	AuditEventDelegationCreated = "delegation_created"
	AuditEventDelegationRevoked = "delegation_revoked"
)
