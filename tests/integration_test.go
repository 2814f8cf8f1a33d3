//go:build integration
// +build integration

package tests

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"org-service/internal/models"
	"org-service/internal/org"
	"org-service/internal/repository"
	"org-service/internal/routing"
	"org-service/internal/services"
)

// IntegrationTestSuite exercises the approval lifecycle against a real
// Postgres database
type IntegrationTestSuite struct {
	suite.Suite
	db                *gorm.DB
	repo              *repository.ApprovalRepository
	service           *services.ApprovalService
	delegationService *services.DelegationService
	catalog           *org.Catalog
	tenantID          string
}

// SetupSuite runs once before all tests
func (s *IntegrationTestSuite) SetupSuite() {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=org_service_test port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		s.T().Fatalf("Failed to connect to database: %v", err)
	}
	s.db = db

	err = s.db.AutoMigrate(
		&models.ApprovalRequest{},
		&models.ApprovalStep{},
		&models.ApprovalAuditLog{},
		&models.ApprovalDelegation{},
	)
	if err != nil {
		s.T().Fatalf("Failed to run migrations: %v", err)
	}

	s.catalog, err = org.Load()
	if err != nil {
		s.T().Fatalf("Failed to load catalog: %v", err)
	}

	s.repo = repository.NewApprovalRepository(s.db)
	s.service = services.NewApprovalService(s.repo, s.catalog, routing.NewRouter(s.catalog), nil, nil)
	s.delegationService = services.NewDelegationService(s.repo, nil)
}

// SetupTest runs before each test
func (s *IntegrationTestSuite) SetupTest() {
	s.tenantID = fmt.Sprintf("test-tenant-%s", uuid.New().String()[:8])
}

// TearDownTest cleans up after each test
func (s *IntegrationTestSuite) TearDownTest() {
	s.db.Exec("DELETE FROM approval_steps WHERE request_id IN (SELECT id FROM approval_requests WHERE tenant_id = ?)", s.tenantID)
	s.db.Exec("DELETE FROM approval_audit_log WHERE tenant_id = ?", s.tenantID)
	s.db.Exec("DELETE FROM approval_requests WHERE tenant_id = ?", s.tenantID)
	s.db.Exec("DELETE FROM approval_delegations WHERE tenant_id = ?", s.tenantID)
}

func (s *IntegrationTestSuite) principal(role org.RoleCode) org.Principal {
	return org.Principal{ID: uuid.New(), Name: "Integration User", Role: role}
}

func (s *IntegrationTestSuite) TestSubmitAndApprove() {
	ctx := context.Background()
	submitter := s.principal(org.RoleFieldOfficer)

	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypeExpense,
		Reason:      "fuel for field visits",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, request.Status)
	s.Equal(string(org.RoleTerritoryManager), request.CurrentApproverRole)

	approver := s.principal(org.RoleTerritoryManager)
	updated, err := s.service.Decide(ctx, request.ID, approver, models.DecisionApprove, "within budget")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)
	s.NotNil(updated.ResolvedAt)

	// The audit trail carries creation and approval.
	history, err := s.service.GetRequestHistory(ctx, request.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
	s.Equal(models.AuditEventCreated, history[0].EventType)
	s.Equal(models.AuditEventApproved, history[1].EventType)
}

func (s *IntegrationTestSuite) TestTwoStepTargetChange() {
	ctx := context.Background()
	submitter := s.principal(org.RoleTerritoryManager)

	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypeTargetChange,
	})
	s.Require().NoError(err)
	s.Len(request.Steps, 2)

	first := s.principal(org.RoleStateHead)
	updated, err := s.service.Decide(ctx, request.ID, first, models.DecisionApprove, "")
	s.Require().NoError(err)
	s.Equal(models.StatusPending, updated.Status)
	s.Equal(string(org.RoleZoneManager), updated.CurrentApproverRole)

	second := s.principal(org.RoleZoneManager)
	updated, err = s.service.Decide(ctx, request.ID, second, models.DecisionApprove, "")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)
}

func (s *IntegrationTestSuite) TestEscalationLifecycle() {
	ctx := context.Background()
	submitter := s.principal(org.RoleFieldOfficer)

	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypeClaim,
	})
	s.Require().NoError(err)

	manager := s.principal(org.RoleTerritoryManager)
	updated, err := s.service.Decide(ctx, request.ID, manager, models.DecisionEscalate, "outside my limit")
	s.Require().NoError(err)
	s.Equal(models.StatusEscalated, updated.Status)
	s.Equal(string(org.RoleStateHead), updated.CurrentApproverRole)

	// A second escalation is refused.
	another := s.principal(org.RoleStateHead)
	_, err = s.service.Decide(ctx, request.ID, another, models.DecisionEscalate, "")
	s.ErrorIs(err, services.ErrAlreadyEscalated)

	// The escalation target resolves the request.
	updated, err = s.service.Decide(ctx, request.ID, another, models.DecisionReject, "not claimable")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, updated.Status)

	// Terminal means terminal.
	_, err = s.service.Decide(ctx, request.ID, another, models.DecisionApprove, "")
	s.ErrorIs(err, services.ErrAlreadyTerminal)
}

func (s *IntegrationTestSuite) TestAutoApprovalOnSubmit() {
	ctx := context.Background()
	submitter := s.principal(org.RoleAdmin)

	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypePlan,
	})
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, request.Status)

	fetched, err := s.service.GetRequest(ctx, request.ID)
	s.Require().NoError(err)
	s.Len(fetched.Steps, 1)
	s.Equal(models.StepOriginAuto, fetched.Steps[0].Origin)
}

func (s *IntegrationTestSuite) TestConcurrentDecisionsSerialize() {
	ctx := context.Background()
	submitter := s.principal(org.RoleFieldOfficer)

	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypeExpense,
	})
	s.Require().NoError(err)

	approver := s.principal(org.RoleTerritoryManager)

	type outcome struct{ err error }
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := s.service.Decide(ctx, request.ID, approver, models.DecisionApprove, "")
			results <- outcome{err}
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			failures++
			ok := errors.Is(r.err, services.ErrAlreadyTerminal) || errors.Is(r.err, repository.ErrVersionConflict)
			s.True(ok, "loser must see a terminal or conflict error, got %v", r.err)
		}
	}
	s.Equal(1, failures, "exactly one decision wins")

	final, err := s.service.GetRequest(ctx, request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, final.Status)
	s.Equal(models.StepStatusApproved, final.Steps[0].Status)
}

func (s *IntegrationTestSuite) TestDelegationLifecycle() {
	ctx := context.Background()
	delegator := s.principal(org.RoleTerritoryManager)
	delegate := s.principal(org.RoleFieldOfficer)

	delegation, err := s.delegationService.CreateDelegation(ctx, s.tenantID, delegator, services.CreateDelegationInput{
		DelegateID: delegate.ID,
		Reason:     "on leave",
		StartDate:  time.Now().Add(-time.Minute),
		EndDate:    time.Now().Add(24 * time.Hour),
	})
	s.Require().NoError(err)
	s.Equal(models.DelegationStatusActive, delegation.GetStatus())

	// The delegate can now act on a step expecting the delegator's role.
	submitter := s.principal(org.RoleFieldOfficer)
	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypeExpense,
	})
	s.Require().NoError(err)

	updated, err := s.service.Decide(ctx, request.ID, delegate, models.DecisionApprove, "covering")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)

	// After revocation the delegate loses the authority.
	_, err = s.delegationService.RevokeDelegation(ctx, delegation.ID, delegator, "back at work")
	s.Require().NoError(err)

	second, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypeExpense,
	})
	s.Require().NoError(err)

	_, err = s.service.Decide(ctx, second.ID, delegate, models.DecisionApprove, "")
	s.ErrorIs(err, services.ErrNotCurrentApprover)
}

func (s *IntegrationTestSuite) TestStaleEscalationSweep() {
	ctx := context.Background()
	submitter := s.principal(org.RoleFieldOfficer)

	request, err := s.service.CreateRequest(ctx, s.tenantID, submitter, services.CreateRequestInput{
		RequestType: routing.TypePlan,
	})
	s.Require().NoError(err)

	// Age the request past the idle window.
	s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("updated_at", time.Now().Add(-100*time.Hour))

	escalated, err := s.service.EscalateStale(ctx, time.Now().Add(-72*time.Hour))
	s.Require().NoError(err)
	s.GreaterOrEqual(escalated, 1)

	fetched, err := s.service.GetRequest(ctx, request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusEscalated, fetched.Status)
	s.Equal(string(org.RoleStateHead), fetched.CurrentApproverRole)
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
