package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"org-service/internal/services"
)

// StaleEscalationJob escalates pending requests that have seen no approver
// activity for longer than the configured idle window
type StaleEscalationJob struct {
	service    *services.ApprovalService
	logger     *logrus.Logger
	staleAfter time.Duration
	interval   time.Duration
	stopCh     chan struct{}
}

// NewStaleEscalationJob creates a new stale escalation job
func NewStaleEscalationJob(service *services.ApprovalService, logger *logrus.Logger, staleAfter time.Duration) *StaleEscalationJob {
	return &StaleEscalationJob{
		service:    service,
		logger:     logger,
		staleAfter: staleAfter,
		interval:   15 * time.Minute, // Check every 15 minutes
		stopCh:     make(chan struct{}),
	}
}

// Start begins the stale escalation job
func (j *StaleEscalationJob) Start(ctx context.Context) {
	j.logger.Info("Stale escalation job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			j.runCheck(ctx)
		case <-j.stopCh:
			j.logger.Info("Stale escalation job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Stale escalation job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *StaleEscalationJob) Stop() {
	close(j.stopCh)
}

func (j *StaleEscalationJob) runCheck(ctx context.Context) {
	j.logger.Debug("Running stale escalation check...")

	idleSince := time.Now().Add(-j.staleAfter)
	escalated, err := j.service.EscalateStale(ctx, idleSince)
	if err != nil {
		j.logger.Errorf("Failed to run stale escalation check: %v", err)
		return
	}

	if escalated > 0 {
		j.logger.Infof("Escalated %d stale requests", escalated)
	}
}
