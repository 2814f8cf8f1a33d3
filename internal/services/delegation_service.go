package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"org-service/internal/models"
	"org-service/internal/org"
	"org-service/internal/repository"
	"org-service/internal/routing"
)

// Delegation errors
var (
	ErrDelegationNotFound    = errors.New("delegation not found")
	ErrSelfDelegation        = errors.New("cannot delegate to yourself")
	ErrInvalidDateRange      = errors.New("invalid delegation date range")
	ErrOverlappingDelegation = errors.New("an overlapping delegation already exists")
	ErrDelegationNotActive   = errors.New("delegation is not active")
	ErrNotDelegationOwner    = errors.New("only the delegator can revoke a delegation")
)

// DelegationService manages temporary handovers of approval authority
type DelegationService struct {
	repo   repository.ApprovalRepositoryInterface
	logger *logrus.Logger
}

// NewDelegationService creates a new DelegationService
func NewDelegationService(repo repository.ApprovalRepositoryInterface, logger *logrus.Logger) *DelegationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DelegationService{repo: repo, logger: logger}
}

// CreateDelegationInput represents input for creating a delegation
type CreateDelegationInput struct {
	DelegateID  uuid.UUID            `json:"delegateId" binding:"required"`
	RequestType *routing.RequestType `json:"requestType,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	StartDate   time.Time            `json:"startDate" binding:"required"`
	EndDate     time.Time            `json:"endDate" binding:"required"`
}

// CreateDelegation creates a delegation from the acting principal to another
// user. The window must be non-empty and must not overlap another active
// delegation by the same delegator for the same request type.
func (s *DelegationService) CreateDelegation(ctx context.Context, tenantID string, delegator org.Principal, input CreateDelegationInput) (*models.ApprovalDelegation, error) {
	if input.DelegateID == delegator.ID {
		return nil, ErrSelfDelegation
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrInvalidDateRange)
	}
	if input.EndDate.Before(time.Now()) {
		return nil, fmt.Errorf("%w: end date is in the past", ErrInvalidDateRange)
	}

	var requestType *string
	if input.RequestType != nil {
		if !routing.KnownType(*input.RequestType) {
			return nil, fmt.Errorf("%w: %q", routing.ErrUnknownRequestType, *input.RequestType)
		}
		rt := string(*input.RequestType)
		requestType = &rt
	}

	overlapping, err := s.repo.CheckOverlappingDelegation(ctx, tenantID, delegator.ID, input.DelegateID, requestType, input.StartDate, input.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to check overlapping delegations: %w", err)
	}
	if overlapping {
		return nil, ErrOverlappingDelegation
	}

	delegation := &models.ApprovalDelegation{
		TenantID:      tenantID,
		DelegatorID:   delegator.ID,
		DelegatorRole: string(delegator.Role),
		DelegateID:    input.DelegateID,
		RequestType:   requestType,
		Reason:        input.Reason,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		IsActive:      true,
	}

	if err := s.repo.CreateDelegation(ctx, delegation); err != nil {
		return nil, fmt.Errorf("failed to create delegation: %w", err)
	}

	s.auditDelegation(ctx, delegation, models.AuditEventDelegationCreated, delegator.ID)

	s.logger.WithFields(logrus.Fields{
		"delegationID": delegation.ID,
		"delegatorID":  delegation.DelegatorID,
		"delegateID":   delegation.DelegateID,
	}).Info("Delegation created")

	return delegation, nil
}

// GetDelegation retrieves a delegation by ID
func (s *DelegationService) GetDelegation(ctx context.Context, delegationID uuid.UUID) (*models.ApprovalDelegation, error) {
	delegation, err := s.repo.GetDelegationByID(ctx, delegationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDelegationNotFound, delegationID)
		}
		return nil, err
	}
	return delegation, nil
}

// ListOutgoing lists delegations granted by a user
func (s *DelegationService) ListOutgoing(ctx context.Context, tenantID string, delegatorID uuid.UUID, includeExpired bool) ([]models.ApprovalDelegation, error) {
	return s.repo.ListDelegationsByDelegator(ctx, tenantID, delegatorID, includeExpired)
}

// ListIncoming lists delegations granted to a user
func (s *DelegationService) ListIncoming(ctx context.Context, tenantID string, delegateID uuid.UUID, includeExpired bool) ([]models.ApprovalDelegation, error) {
	return s.repo.ListDelegationsByDelegate(ctx, tenantID, delegateID, includeExpired)
}

// RevokeDelegation deactivates a delegation. Only the delegator may revoke.
func (s *DelegationService) RevokeDelegation(ctx context.Context, delegationID uuid.UUID, actor org.Principal, reason string) (*models.ApprovalDelegation, error) {
	delegation, err := s.GetDelegation(ctx, delegationID)
	if err != nil {
		return nil, err
	}
	if delegation.DelegatorID != actor.ID {
		return nil, ErrNotDelegationOwner
	}
	if !delegation.IsActive || delegation.RevokedAt != nil {
		return nil, fmt.Errorf("%w: %s", ErrDelegationNotActive, delegationID)
	}

	if err := s.repo.RevokeDelegation(ctx, delegationID, actor.ID, reason); err != nil {
		return nil, fmt.Errorf("failed to revoke delegation: %w", err)
	}

	delegation, err = s.GetDelegation(ctx, delegationID)
	if err != nil {
		return nil, err
	}

	s.auditDelegation(ctx, delegation, models.AuditEventDelegationRevoked, actor.ID)

	return delegation, nil
}

func (s *DelegationService) auditDelegation(ctx context.Context, delegation *models.ApprovalDelegation, eventType string, actorID uuid.UUID) {
	metadata, _ := json.Marshal(map[string]interface{}{
		"delegation_id": delegation.ID.String(),
		"delegator_id":  delegation.DelegatorID.String(),
		"delegate_id":   delegation.DelegateID.String(),
	})

	log := &models.ApprovalAuditLog{
		RequestID: delegation.ID, // delegation events are keyed by the delegation itself
		TenantID:  delegation.TenantID,
		EventType: eventType,
		ActorID:   &actorID,
		ActorRole: delegation.DelegatorRole,
		Metadata:  datatypes.JSON(metadata),
	}

	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.WithField("delegationID", delegation.ID).WithError(err).Error("Failed to create audit log")
	}
}
