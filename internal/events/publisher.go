package events

import (
	"context"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"org-service/internal/models"
)

// Publisher wraps the go-shared events publisher for approval lifecycle
// events. Delivery is best-effort: a failed publish is logged and never
// fails the originating operation.
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new approval events publisher from an existing go-shared publisher
func NewPublisher(publisher *events.Publisher, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "approval-events"),
	}
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p != nil && p.publisher != nil {
		p.publisher.Close()
	}
}

// PublishSubmitted publishes an approval.requested event
func (p *Publisher) PublishSubmitted(ctx context.Context, request *models.ApprovalRequest) error {
	event := p.buildEvent(events.ApprovalRequested, request)
	event.Status = request.Status
	event.RequestedAt = request.SubmittedAt.Format(time.RFC3339)
	return p.publish(ctx, event)
}

// PublishAutoApproved publishes an approval.granted event for a request
// whose chain was empty at submission
func (p *Publisher) PublishAutoApproved(ctx context.Context, request *models.ApprovalRequest, reason string) error {
	event := p.buildEvent(events.ApprovalGranted, request)
	event.Status = models.StatusApproved
	event.Decision = "approve"
	event.DecisionReason = reason
	event.DecisionAt = time.Now().UTC().Format(time.RFC3339)
	return p.publish(ctx, event)
}

// PublishApproved publishes an approval.granted event for an approved step
func (p *Publisher) PublishApproved(ctx context.Context, request *models.ApprovalRequest, step *models.ApprovalStep) error {
	event := p.buildEvent(events.ApprovalGranted, request)
	event.Status = request.Status
	event.PreviousStatus = models.StatusPending
	event.Decision = "approve"
	p.applyStep(event, step)
	return p.publish(ctx, event)
}

// PublishRejected publishes an approval.rejected event
func (p *Publisher) PublishRejected(ctx context.Context, request *models.ApprovalRequest, step *models.ApprovalStep) error {
	event := p.buildEvent(events.ApprovalRejected, request)
	event.Status = models.StatusRejected
	event.PreviousStatus = models.StatusPending
	event.Decision = "reject"
	p.applyStep(event, step)
	return p.publish(ctx, event)
}

// PublishEscalated publishes an approval.escalated event
func (p *Publisher) PublishEscalated(ctx context.Context, request *models.ApprovalRequest, fromRole, toRole, reason string) error {
	event := p.buildEvent(events.ApprovalEscalated, request)
	event.Status = models.StatusEscalated
	event.PreviousStatus = models.StatusPending
	event.EscalatedFrom = fromRole
	event.EscalatedTo = toRole
	event.EscalationReason = reason
	event.EscalationLevel = request.CurrentStepIndex
	return p.publish(ctx, event)
}

// buildEvent creates an ApprovalEvent from an approval request model
func (p *Publisher) buildEvent(eventType string, request *models.ApprovalRequest) *events.ApprovalEvent {
	event := events.NewApprovalEvent(eventType, request.TenantID)
	event.SourceID = uuid.New().String()
	event.ApprovalRequestID = request.ID.String()
	event.RequesterID = request.SubmitterID.String()
	event.RequesterName = request.SubmitterName
	event.ActionType = request.RequestType
	event.ResourceType = request.Module
	return event
}

func (p *Publisher) applyStep(event *events.ApprovalEvent, step *models.ApprovalStep) {
	if step == nil {
		return
	}
	if step.ApproverID != nil {
		event.ApproverID = step.ApproverID.String()
	}
	event.ApproverRole = step.ExpectedRole
	event.DecisionReason = step.Comment
	if step.ActedAt != nil {
		event.DecisionAt = step.ActedAt.Format(time.RFC3339)
	}
}

// publish is a helper that logs and publishes events asynchronously
func (p *Publisher) publish(ctx context.Context, event *events.ApprovalEvent) error {
	if p == nil || p.publisher == nil {
		return nil
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.publisher.PublishApproval(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType":         event.EventType,
				"approvalRequestID": event.ApprovalRequestID,
				"tenantID":          event.TenantID,
			}).WithError(err).Error("Failed to publish approval event")
		}
	}()

	return nil
}
