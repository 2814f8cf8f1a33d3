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

	"org-service/internal/events"
	"org-service/internal/models"
	"org-service/internal/org"
	"org-service/internal/repository"
	"org-service/internal/routing"
)

// Workflow errors. Each precondition violation is distinct so callers can
// tell "wrong actor" from "no such permission" from "already decided".
var (
	ErrRequestNotFound    = errors.New("approval request not found")
	ErrAlreadyTerminal    = errors.New("request has already been decided")
	ErrNotCurrentApprover = errors.New("actor is not the current expected approver")
	ErrPermissionDenied   = errors.New("role lacks approve permission for this module")
	ErrEscalationFromRoot = errors.New("cannot escalate beyond the root role")
	ErrAlreadyEscalated   = errors.New("request has already been escalated")
	ErrInvalidDecision    = errors.New("invalid decision")
)

// ApprovalService owns the approval request lifecycle: chain freezing at
// submission, decision preconditions, and the single-step escalation rule.
type ApprovalService struct {
	repo      repository.ApprovalRepositoryInterface
	catalog   *org.Catalog
	router    *routing.Router
	publisher *events.Publisher
	logger    *logrus.Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(repo repository.ApprovalRepositoryInterface, catalog *org.Catalog, router *routing.Router, publisher *events.Publisher, logger *logrus.Logger) *ApprovalService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ApprovalService{
		repo:      repo,
		catalog:   catalog,
		router:    router,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateRequestInput represents input for creating an approval request
type CreateRequestInput struct {
	RequestType routing.RequestType `json:"requestType" binding:"required"`
	Reason      string              `json:"reason,omitempty"`
	Context     routing.Context     `json:"context,omitempty"`
}

// CreateRequest routes a submission and creates the request with its frozen
// chain. An empty chain is the documented auto-approval case: the request is
// created directly in the approved state with a system auto-approval step.
func (s *ApprovalService) CreateRequest(ctx context.Context, tenantID string, submitter org.Principal, input CreateRequestInput) (*models.ApprovalRequest, error) {
	if _, err := s.catalog.RoleByCode(submitter.Role); err != nil {
		return nil, err
	}

	module, err := routing.ModuleFor(input.RequestType)
	if err != nil {
		return nil, err
	}

	chain, err := s.router.Route(input.RequestType, submitter.Role, input.Context)
	if err != nil {
		return nil, err
	}

	contextJSON, err := json.Marshal(input.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal route context: %w", err)
	}

	request := &models.ApprovalRequest{
		TenantID:      tenantID,
		RequestType:   string(input.RequestType),
		Module:        string(module),
		SubmitterID:   submitter.ID,
		SubmitterName: submitter.Name,
		SubmitterRole: string(submitter.Role),
		ApproverChain: roleChainStrings(chain),
		Reason:        input.Reason,
		RouteContext:  datatypes.JSON(contextJSON),
		Version:       1,
	}

	if len(chain) == 0 {
		now := time.Now()
		reason := fmt.Sprintf("auto-approved: no approver chain for %s submitted by %s", input.RequestType, submitter.Role)
		submitterID := submitter.ID
		request.Status = models.StatusApproved
		request.ResolvedAt = &now
		request.ResolutionComment = reason
		request.Steps = []models.ApprovalStep{{
			StepIndex:    0,
			ExpectedRole: string(submitter.Role),
			Origin:       models.StepOriginAuto,
			Status:       models.StepStatusApproved,
			ApproverID:   &submitterID,
			ApproverName: submitter.Name,
			Comment:      reason,
			ActedAt:      &now,
		}}
	} else {
		request.Status = models.StatusPending
		request.CurrentStepIndex = 0
		request.CurrentApproverRole = string(chain[0])
		steps := make([]models.ApprovalStep, len(chain))
		for i, role := range chain {
			steps[i] = models.ApprovalStep{
				StepIndex:    i,
				ExpectedRole: string(role),
				Origin:       models.StepOriginChain,
				Status:       models.StepStatusPending,
			}
		}
		request.Steps = steps
	}

	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if request.Status == models.StatusApproved {
		s.createAuditLog(ctx, request, models.AuditEventAutoApproved, &submitter.ID, string(submitter.Role), map[string]interface{}{
			"reason": request.ResolutionComment,
		})
		s.publisher.PublishAutoApproved(ctx, request, request.ResolutionComment)
	} else {
		s.createAuditLog(ctx, request, models.AuditEventCreated, &submitter.ID, string(submitter.Role), nil)
		s.publisher.PublishSubmitted(ctx, request)
	}

	return request, nil
}

// decideOutcome carries what happened inside the transaction out to audit
// and event publication
type decideOutcome struct {
	request   *models.ApprovalRequest
	step      *models.ApprovalStep
	eventType string
	fromRole  string
	toRole    string
	reason    string
}

// Decide applies one approver decision to a request. Preconditions are
// checked in order: the request must exist and be non-terminal, the acting
// principal's role must match the current expected approver (or hold a valid
// delegation from it), and the effective role must carry the approve grant
// on the request's module.
//
// Concurrent decisions against the same request serialize on the request's
// version: the loser of a race observes ErrAlreadyTerminal or a version
// conflict, never a silently double-applied decision.
func (s *ApprovalService) Decide(ctx context.Context, requestID uuid.UUID, actor org.Principal, decision string, comment string) (*models.ApprovalRequest, error) {
	if decision != models.DecisionApprove && decision != models.DecisionReject && decision != models.DecisionEscalate {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	// Pre-transaction validation
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	effectiveRole, delegatedFrom, err := s.authorizeActor(ctx, request, actor)
	if err != nil {
		return nil, err
	}

	var outcome decideOutcome
	err = s.repo.WithTransaction(ctx, func(txRepo repository.ApprovalRepositoryInterface) error {
		// Re-fetch within the transaction; a racing decision may have moved
		// the request since the pre-check.
		txRequest, err := txRepo.GetRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if txRequest.IsTerminal() {
			return fmt.Errorf("%w: request %s is %s", ErrAlreadyTerminal, txRequest.ID, txRequest.Status)
		}
		if txRequest.CurrentStepIndex != request.CurrentStepIndex {
			return repository.ErrVersionConflict
		}

		step := txRequest.CurrentStep()
		if step == nil {
			return fmt.Errorf("request %s has no live step at index %d", txRequest.ID, txRequest.CurrentStepIndex)
		}

		switch decision {
		case models.DecisionApprove:
			return s.applyApprove(ctx, txRepo, txRequest, step, actor, comment, &outcome)
		case models.DecisionReject:
			return s.applyReject(ctx, txRepo, txRequest, step, actor, comment, &outcome)
		default:
			return s.applyEscalate(ctx, txRepo, txRequest, step, &actor.ID, actor.Name, comment, &outcome)
		}
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{"comment": comment}
	if delegatedFrom != nil {
		metadata["delegated_from"] = delegatedFrom.String()
		metadata["via_delegation"] = true
	}
	s.createAuditLog(ctx, outcome.request, outcome.eventType, &actor.ID, effectiveRole, metadata)
	s.publishOutcome(ctx, outcome)

	return outcome.request, nil
}

// EscalateStale system-escalates pending requests idle since the given
// time, one level up from the current expected approver. Requests whose
// expected approver has no parent are left alone. Returns the number of
// requests escalated.
func (s *ApprovalService) EscalateStale(ctx context.Context, idleSince time.Time) (int, error) {
	stale, err := s.repo.FindStaleRequests(ctx, idleSince)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range stale {
		request := &stale[i]
		step := request.CurrentStep()
		if step == nil {
			continue
		}
		if _, ok := s.catalog.Parent(org.RoleCode(step.ExpectedRole)); !ok {
			s.logger.WithFields(logrus.Fields{
				"requestID":    request.ID,
				"expectedRole": step.ExpectedRole,
			}).Warn("Stale request waiting on root role, cannot escalate")
			continue
		}

		var outcome decideOutcome
		err := s.repo.WithTransaction(ctx, func(txRepo repository.ApprovalRepositoryInterface) error {
			txRequest, err := txRepo.GetRequestByID(ctx, request.ID)
			if err != nil {
				return err
			}
			if txRequest.Status != models.StatusPending || txRequest.CurrentStepIndex != request.CurrentStepIndex {
				return repository.ErrVersionConflict
			}
			txStep := txRequest.CurrentStep()
			if txStep == nil {
				return repository.ErrVersionConflict
			}
			return s.applyEscalate(ctx, txRepo, txRequest, txStep, nil, "", "auto-escalated after inactivity", &outcome)
		})
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			s.logger.WithField("requestID", request.ID).WithError(err).Error("Failed to escalate stale request")
			continue
		}

		s.createAuditLog(ctx, outcome.request, models.AuditEventEscalated, nil, "", map[string]interface{}{
			"from_role": outcome.fromRole,
			"to_role":   outcome.toRole,
			"reason":    "inactivity",
		})
		s.publishOutcome(ctx, outcome)
		escalated++
	}

	return escalated, nil
}

// --- Read Operations ---

// GetRequest retrieves a request by ID
func (s *ApprovalService) GetRequest(ctx context.Context, requestID uuid.UUID) (*models.ApprovalRequest, error) {
	return s.getRequest(ctx, requestID)
}

// ListPendingForRole lists undecided requests waiting on an approver role
func (s *ApprovalService) ListPendingForRole(ctx context.Context, tenantID string, approverRole string, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	return s.repo.ListPendingForRole(ctx, tenantID, approverRole, limit, offset)
}

// ListMyRequests lists requests submitted by a user
func (s *ApprovalService) ListMyRequests(ctx context.Context, tenantID string, submitterID uuid.UUID, limit, offset int) ([]models.ApprovalRequest, int64, error) {
	return s.repo.ListBySubmitter(ctx, tenantID, submitterID, limit, offset)
}

// GetRequestHistory retrieves the audit history for a request
func (s *ApprovalService) GetRequestHistory(ctx context.Context, requestID uuid.UUID) ([]models.ApprovalAuditLog, error) {
	return s.repo.GetRequestHistory(ctx, requestID)
}

// RoutePreview computes the approver chain a submission would freeze,
// without creating anything
func (s *ApprovalService) RoutePreview(requestType routing.RequestType, submitter org.RoleCode, routeCtx routing.Context) ([]org.RoleCode, error) {
	return s.router.Route(requestType, submitter, routeCtx)
}

// HasPermission answers "can this role do this action on this module"
func (s *ApprovalService) HasPermission(role org.RoleCode, module org.Module, action org.Action) bool {
	return s.catalog.HasPermission(role, module, action)
}

// DataScope resolves the data scope for a principal
func (s *ApprovalService) DataScope(p org.Principal) (org.Scope, error) {
	return s.catalog.ScopeForPrincipal(p)
}

// --- Decision application (inside the transaction) ---

func (s *ApprovalService) applyApprove(ctx context.Context, txRepo repository.ApprovalRepositoryInterface, request *models.ApprovalRequest, step *models.ApprovalStep, actor org.Principal, comment string, outcome *decideOutcome) error {
	now := time.Now()
	actorID := actor.ID
	step.Status = models.StepStatusApproved
	step.ApproverID = &actorID
	step.ApproverName = actor.Name
	step.Comment = comment
	step.ActedAt = &now
	if err := txRepo.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	nextIndex := request.CurrentStepIndex + 1
	if request.Status == models.StatusPending && nextIndex < len(request.Steps) {
		// More chain steps remain
		request.CurrentStepIndex = nextIndex
		request.CurrentApproverRole = request.Steps[nextIndex].ExpectedRole
	} else {
		// Final step, or the decision of an escalation target: the request
		// is approved and any not-yet-acted chain steps are skipped.
		if err := s.skipPendingSteps(ctx, txRepo, request, step.ID, "superseded by final approval", now); err != nil {
			return err
		}
		request.Status = models.StatusApproved
		request.ResolvedAt = &now
		request.ResolutionComment = comment
		request.CurrentApproverRole = ""
	}

	if err := txRepo.UpdateRequestWithLock(ctx, request); err != nil {
		return err
	}

	outcome.request = request
	outcome.step = step
	outcome.eventType = models.AuditEventApproved
	return nil
}

func (s *ApprovalService) applyReject(ctx context.Context, txRepo repository.ApprovalRepositoryInterface, request *models.ApprovalRequest, step *models.ApprovalStep, actor org.Principal, comment string, outcome *decideOutcome) error {
	now := time.Now()
	actorID := actor.ID
	step.Status = models.StepStatusRejected
	step.ApproverID = &actorID
	step.ApproverName = actor.Name
	step.Comment = comment
	step.ActedAt = &now
	if err := txRepo.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	// Rejection is never partial: remaining steps are skipped and the
	// request is terminal regardless of how many sign-offs were left.
	if err := s.skipPendingSteps(ctx, txRepo, request, step.ID, "superseded by rejection", now); err != nil {
		return err
	}

	request.Status = models.StatusRejected
	request.ResolvedAt = &now
	request.ResolutionComment = comment
	request.CurrentApproverRole = ""

	if err := txRepo.UpdateRequestWithLock(ctx, request); err != nil {
		return err
	}

	outcome.request = request
	outcome.step = step
	outcome.eventType = models.AuditEventRejected
	return nil
}

func (s *ApprovalService) applyEscalate(ctx context.Context, txRepo repository.ApprovalRepositoryInterface, request *models.ApprovalRequest, step *models.ApprovalStep, actorID *uuid.UUID, actorName, comment string, outcome *decideOutcome) error {
	parent, ok := s.catalog.Parent(org.RoleCode(step.ExpectedRole))
	if !ok {
		return fmt.Errorf("%w: role %q has no parent", ErrEscalationFromRoot, step.ExpectedRole)
	}
	if request.Status == models.StatusEscalated {
		return fmt.Errorf("%w: request %s", ErrAlreadyEscalated, request.ID)
	}

	now := time.Now()
	step.Status = models.StepStatusSkipped
	step.ApproverID = actorID
	step.ApproverName = actorName
	step.Comment = comment
	step.ActedAt = &now
	if err := txRepo.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	// The chain grows by exactly one step, once, to the escalating
	// approver's direct parent.
	inserted := &models.ApprovalStep{
		RequestID:    request.ID,
		StepIndex:    len(request.Steps),
		ExpectedRole: string(parent.Code),
		Origin:       models.StepOriginEscalation,
		Status:       models.StepStatusPending,
	}
	if err := txRepo.CreateStep(ctx, inserted); err != nil {
		return fmt.Errorf("failed to create escalation step: %w", err)
	}

	request.CurrentStepIndex = inserted.StepIndex
	request.CurrentApproverRole = inserted.ExpectedRole
	request.Status = models.StatusEscalated

	if err := txRepo.UpdateRequestWithLock(ctx, request); err != nil {
		return err
	}

	request.Steps = append(request.Steps, *inserted)

	outcome.request = request
	outcome.step = inserted
	outcome.eventType = models.AuditEventEscalated
	outcome.fromRole = step.ExpectedRole
	outcome.toRole = inserted.ExpectedRole
	outcome.reason = comment
	return nil
}

// skipPendingSteps marks every still-pending step other than the acted one
// as skipped
func (s *ApprovalService) skipPendingSteps(ctx context.Context, txRepo repository.ApprovalRepositoryInterface, request *models.ApprovalRequest, actedStepID uuid.UUID, reason string, now time.Time) error {
	for i := range request.Steps {
		other := &request.Steps[i]
		if other.ID == actedStepID || other.Status != models.StepStatusPending {
			continue
		}
		other.Status = models.StepStatusSkipped
		other.Comment = reason
		other.ActedAt = &now
		if err := txRepo.UpdateStep(ctx, other); err != nil {
			return fmt.Errorf("failed to skip step %d: %w", other.StepIndex, err)
		}
	}
	return nil
}

// --- Helpers ---

func (s *ApprovalService) getRequest(ctx context.Context, requestID uuid.UUID) (*models.ApprovalRequest, error) {
	request, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
		}
		return nil, err
	}
	return request, nil
}

// authorizeActor verifies the acting principal against the current expected
// approver and the permission matrix. Returns the effective role the actor
// acts as and, when acting via delegation, the delegator's ID.
func (s *ApprovalService) authorizeActor(ctx context.Context, request *models.ApprovalRequest, actor org.Principal) (string, *uuid.UUID, error) {
	if request.IsTerminal() {
		return "", nil, fmt.Errorf("%w: request %s is %s", ErrAlreadyTerminal, request.ID, request.Status)
	}

	step := request.CurrentStep()
	if step == nil {
		return "", nil, fmt.Errorf("request %s has no live step at index %d", request.ID, request.CurrentStepIndex)
	}

	effectiveRole := string(actor.Role)
	var delegatedFrom *uuid.UUID

	if effectiveRole != step.ExpectedRole {
		delegator, ok, err := s.findDelegator(ctx, request, actor, step.ExpectedRole)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, fmt.Errorf("%w: expected %q, got %q on request %s",
				ErrNotCurrentApprover, step.ExpectedRole, actor.Role, request.ID)
		}
		effectiveRole = step.ExpectedRole
		delegatedFrom = delegator
	}

	if !s.catalog.HasPermission(org.RoleCode(effectiveRole), org.Module(request.Module), org.ActionApprove) {
		return "", nil, fmt.Errorf("%w: role %q, module %q", ErrPermissionDenied, effectiveRole, request.Module)
	}

	return effectiveRole, delegatedFrom, nil
}

// findDelegator looks for a currently valid delegation letting the actor act
// in the expected role
func (s *ApprovalService) findDelegator(ctx context.Context, request *models.ApprovalRequest, actor org.Principal, expectedRole string) (*uuid.UUID, bool, error) {
	delegations, err := s.repo.FindActiveDelegations(ctx, request.TenantID, actor.ID, request.RequestType)
	if err != nil {
		return nil, false, err
	}
	for _, delegation := range delegations {
		if delegation.DelegatorRole == expectedRole {
			delegatorID := delegation.DelegatorID
			return &delegatorID, true, nil
		}
	}
	return nil, false, nil
}

func (s *ApprovalService) createAuditLog(ctx context.Context, request *models.ApprovalRequest, eventType string, actorID *uuid.UUID, actorRole string, metadata map[string]interface{}) {
	metadataJSON, _ := json.Marshal(metadata)

	log := &models.ApprovalAuditLog{
		RequestID: request.ID,
		TenantID:  request.TenantID,
		EventType: eventType,
		ActorID:   actorID,
		ActorRole: actorRole,
		Metadata:  datatypes.JSON(metadataJSON),
	}

	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.WithField("requestID", request.ID).WithError(err).Error("Failed to create audit log")
	}
}

func (s *ApprovalService) publishOutcome(ctx context.Context, outcome decideOutcome) {
	if s.publisher == nil {
		return
	}
	switch outcome.eventType {
	case models.AuditEventApproved:
		s.publisher.PublishApproved(ctx, outcome.request, outcome.step)
	case models.AuditEventRejected:
		s.publisher.PublishRejected(ctx, outcome.request, outcome.step)
	case models.AuditEventEscalated:
		s.publisher.PublishEscalated(ctx, outcome.request, outcome.fromRole, outcome.toRole, outcome.reason)
	}
}

func roleChainStrings(chain []org.RoleCode) []string {
	out := make([]string, len(chain))
	for i, role := range chain {
		out[i] = string(role)
	}
	return out
}
