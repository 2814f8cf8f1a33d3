package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"org-service/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict - record was modified by another request")
)

// ApprovalRepositoryInterface abstracts persistence so services can be
// tested against a mock and run inside transactions.
type ApprovalRepositoryInterface interface {
	WithTransaction(ctx context.Context, fn func(txRepo ApprovalRepositoryInterface) error) error

	CreateRequest(ctx context.Context, request *models.ApprovalRequest) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	ListPendingForRole(ctx context.Context, tenantID, approverRole string, limit, offset int) ([]models.ApprovalRequest, int64, error)
	ListBySubmitter(ctx context.Context, tenantID string, submitterID uuid.UUID, limit, offset int) ([]models.ApprovalRequest, int64, error)
	UpdateRequestWithLock(ctx context.Context, request *models.ApprovalRequest) error
	FindStaleRequests(ctx context.Context, idleSince time.Time) ([]models.ApprovalRequest, error)

	CreateStep(ctx context.Context, step *models.ApprovalStep) error
	UpdateStep(ctx context.Context, step *models.ApprovalStep) error

	CreateAuditLog(ctx context.Context, log *models.ApprovalAuditLog) error
	GetRequestHistory(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalAuditLog, error)

	CreateDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error
	GetDelegationByID(ctx context.Context, id uuid.UUID) (*models.ApprovalDelegation, error)
	ListDelegationsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, includeExpired bool) ([]models.ApprovalDelegation, error)
	ListDelegationsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, includeExpired bool) ([]models.ApprovalDelegation, error)
	FindActiveDelegations(ctx context.Context, tenantID string, delegateID uuid.UUID, requestType string) ([]models.ApprovalDelegation, error)
	RevokeDelegation(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string) error
	CheckOverlappingDelegation(ctx context.Context, tenantID string, delegatorID, delegateID uuid.UUID, requestType *string, startDate, endDate time.Time) (bool, error)
}

// ApprovalRepository handles database operations for approvals
type ApprovalRepository struct {
	db *gorm.DB
}

var _ ApprovalRepositoryInterface = (*ApprovalRepository)(nil)

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// WithTransaction runs fn against a repository bound to a transaction
func (r *ApprovalRepository) WithTransaction(ctx context.Context, fn func(txRepo ApprovalRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ApprovalRepository{db: tx})
	})
}

// --- Request Methods ---

// CreateRequest creates a new approval request with its steps
func (r *ApprovalRepository) CreateRequest(ctx context.Context, request *models.ApprovalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// GetRequestByID retrieves a request by ID with its steps in chain order
func (r *ApprovalRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC")
		}).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}

// ListPendingForRole retrieves undecided requests currently waiting on the
// given approver role
func (r *ApprovalRepository) ListPendingForRole(ctx context.Context, tenantID, approverRole string, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	var requests []models.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("tenant_id = ?", tenantID).
		Where("status IN ?", []string{models.StatusPending, models.StatusEscalated})

	if approverRole != "" {
		query = query.Where("current_approver_role = ?", approverRole)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC")
		}).
		Order("submitted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error

	return requests, total, err
}

// ListBySubmitter retrieves requests submitted by a specific user
func (r *ApprovalRepository) ListBySubmitter(ctx context.Context, tenantID string, submitterID uuid.UUID, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	var requests []models.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("tenant_id = ? AND submitter_id = ?", tenantID, submitterID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC")
		}).
		Order("submitted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error

	return requests, total, err
}

// UpdateRequestWithLock persists status, step index and resolution fields
// with optimistic locking. A concurrent writer that won the race leaves this
// caller with ErrVersionConflict.
func (r *ApprovalRepository) UpdateRequestWithLock(ctx context.Context, request *models.ApprovalRequest) error {
	oldVersion := request.Version

	result := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND version = ?", request.ID, oldVersion).
		Updates(map[string]interface{}{
			"status":                request.Status,
			"current_step_index":    request.CurrentStepIndex,
			"current_approver_role": request.CurrentApproverRole,
			"resolved_at":           request.ResolvedAt,
			"resolution_comment":    request.ResolutionComment,
			"version":               oldVersion + 1,
			"updated_at":            time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	request.Version = oldVersion + 1
	return nil
}

// FindStaleRequests finds pending requests that have seen no activity since
// the given time
func (r *ApprovalRepository) FindStaleRequests(ctx context.Context, idleSince time.Time) ([]models.ApprovalRequest, error) {
	var requests []models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC")
		}).
		Where("status = ? AND updated_at < ?", models.StatusPending, idleSince).
		Find(&requests).Error
	return requests, err
}

// --- Step Methods ---

// CreateStep creates a new approval step
func (r *ApprovalRepository) CreateStep(ctx context.Context, step *models.ApprovalStep) error {
	return r.db.WithContext(ctx).Create(step).Error
}

// UpdateStep persists a step's single permitted mutation
func (r *ApprovalRepository) UpdateStep(ctx context.Context, step *models.ApprovalStep) error {
	result := r.db.WithContext(ctx).Model(&models.ApprovalStep{}).
		Where("id = ?", step.ID).
		Updates(map[string]interface{}{
			"status":        step.Status,
			"approver_id":   step.ApproverID,
			"approver_name": step.ApproverName,
			"comment":       step.Comment,
			"acted_at":      step.ActedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Audit Methods ---

// CreateAuditLog creates an audit log entry
func (r *ApprovalRepository) CreateAuditLog(ctx context.Context, log *models.ApprovalAuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetRequestHistory retrieves audit history for a request
func (r *ApprovalRepository) GetRequestHistory(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalAuditLog, error) {
	var logs []models.ApprovalAuditLog
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// --- Delegation Methods ---

// CreateDelegation creates a new delegation record
func (r *ApprovalRepository) CreateDelegation(ctx context.Context, delegation *models.ApprovalDelegation) error {
	return r.db.WithContext(ctx).Create(delegation).Error
}

// GetDelegationByID retrieves a delegation by ID
func (r *ApprovalRepository) GetDelegationByID(ctx context.Context, id uuid.UUID) (*models.ApprovalDelegation, error) {
	var delegation models.ApprovalDelegation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&delegation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &delegation, nil
}

// ListDelegationsByDelegator retrieves all delegations created by a user
func (r *ApprovalRepository) ListDelegationsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, includeExpired bool) ([]models.ApprovalDelegation, error) {
	var delegations []models.ApprovalDelegation

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegator_id = ?", tenantID, delegatorID)

	if !includeExpired {
		query = query.Where("is_active = ? AND end_date > ?", true, time.Now())
	}

	err := query.Order("created_at DESC").Find(&delegations).Error
	return delegations, err
}

// ListDelegationsByDelegate retrieves all delegations granted to a user
func (r *ApprovalRepository) ListDelegationsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, includeExpired bool) ([]models.ApprovalDelegation, error) {
	var delegations []models.ApprovalDelegation

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegate_id = ?", tenantID, delegateID)

	if !includeExpired {
		query = query.Where("is_active = ? AND end_date > ?", true, time.Now())
	}

	err := query.Order("created_at DESC").Find(&delegations).Error
	return delegations, err
}

// FindActiveDelegations finds delegations currently valid for a delegate,
// scoped to a request type (delegations with a null request type apply to
// all types)
func (r *ApprovalRepository) FindActiveDelegations(ctx context.Context, tenantID string, delegateID uuid.UUID, requestType string) ([]models.ApprovalDelegation, error) {
	var delegations []models.ApprovalDelegation
	now := time.Now()

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegate_id = ? AND is_active = ?", tenantID, delegateID, true).
		Where("start_date <= ? AND end_date > ?", now, now).
		Where("revoked_at IS NULL")

	if requestType != "" {
		query = query.Where("request_type = ? OR request_type IS NULL", requestType)
	}

	err := query.Find(&delegations).Error
	return delegations, err
}

// RevokeDelegation revokes an existing delegation
func (r *ApprovalRepository) RevokeDelegation(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, reason string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.ApprovalDelegation{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":     false,
			"revoked_at":    now,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
			"updated_at":    now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// CheckOverlappingDelegation checks for an overlapping active delegation of
// the same delegator/delegate/request-type
func (r *ApprovalRepository) CheckOverlappingDelegation(ctx context.Context, tenantID string, delegatorID, delegateID uuid.UUID, requestType *string, startDate, endDate time.Time) (bool, error) {
	var count int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalDelegation{}).
		Where("tenant_id = ? AND delegator_id = ? AND delegate_id = ? AND is_active = ?",
			tenantID, delegatorID, delegateID, true).
		Where("revoked_at IS NULL").
		Where("(start_date < ? AND end_date > ?)", endDate, startDate) // Overlapping date check

	if requestType != nil {
		query = query.Where("request_type = ?", *requestType)
	} else {
		query = query.Where("request_type IS NULL")
	}

	err := query.Count(&count).Error
	return count > 0, err
}
