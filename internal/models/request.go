package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ApprovalRequest is a submitted item together with its frozen approver
// chain. The chain is computed once at submission and never re-routed; the
// only permitted growth is a single escalation step inserted at runtime.
type ApprovalRequest struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`

	RequestType string `gorm:"type:varchar(50);not null;index" json:"requestType"`
	Module      string `gorm:"type:varchar(50);not null" json:"module"`

	SubmitterID   uuid.UUID `gorm:"type:uuid;not null;index" json:"submitterId"`
	SubmitterName string    `gorm:"type:varchar(255)" json:"submitterName,omitempty"`
	SubmitterRole string    `gorm:"type:varchar(50);not null" json:"submitterRole"`

	// Approval chain tracking. ApproverChain is frozen at creation time.
	// CurrentApproverRole is denormalized from the live step for queries.
	ApproverChain       pq.StringArray `gorm:"type:text[]" json:"approverChain"`
	CurrentStepIndex    int            `gorm:"default:0" json:"currentStepIndex"`
	CurrentApproverRole string         `gorm:"type:varchar(50);index" json:"currentApproverRole,omitempty"`
	Status              string         `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	Version             int            `gorm:"not null;default:1" json:"version"` // Optimistic locking

	Reason       string         `gorm:"type:text" json:"reason,omitempty"`
	RouteContext datatypes.JSON `gorm:"type:jsonb" json:"routeContext,omitempty"`

	SubmittedAt       time.Time  `gorm:"autoCreateTime" json:"submittedAt"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	ResolutionComment string     `gorm:"type:text" json:"resolutionComment,omitempty"`

	// Relations. Steps are owned exclusively by this request.
	Steps []ApprovalStep `gorm:"foreignKey:RequestID" json:"steps,omitempty"`
}

// TableName returns the table name for ApprovalRequest
func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// ApprovalStatus constants
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusEscalated = "escalated"
)

// IsTerminal returns true if the status is a terminal state
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// CurrentStep returns the step at the current step index, or nil for a
// request with no live step (auto-approved or malformed).
func (r *ApprovalRequest) CurrentStep() *ApprovalStep {
	for i := range r.Steps {
		if r.Steps[i].StepIndex == r.CurrentStepIndex {
			return &r.Steps[i]
		}
	}
	return nil
}

// ApprovalStep is one element of a request's chain. A step is created
// pending and mutated exactly once when the designated approver acts; it is
// never deleted.
type ApprovalStep struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"requestId"`
	StepIndex int       `gorm:"not null" json:"stepIndex"`

	ExpectedRole string `gorm:"type:varchar(50);not null" json:"expectedRole"`
	Origin       string `gorm:"type:varchar(20);not null;default:'chain'" json:"origin"`
	Status       string `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	ApproverID   *uuid.UUID `gorm:"type:uuid" json:"approverId,omitempty"`
	ApproverName string     `gorm:"type:varchar(255)" json:"approverName,omitempty"`
	Comment      string     `gorm:"type:text" json:"comment,omitempty"`
	ActedAt      *time.Time `json:"actedAt,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for ApprovalStep
func (ApprovalStep) TableName() string {
	return "approval_steps"
}

// Step status constants
const (
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
	StepStatusSkipped  = "skipped"
)

// Step origin constants
const (
	StepOriginChain      = "chain"      // part of the frozen chain
	StepOriginAuto       = "auto"       // system-generated auto-approval
	StepOriginEscalation = "escalation" // inserted by an escalation
)

// Decision constants for the decide operation
const (
	DecisionApprove  = "approve"
	DecisionReject   = "reject"
	DecisionEscalate = "escalate"
)
