package approval

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mhrivnak/orderflow/pkg/database/dbtest"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/events"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

type notifierMock struct{ mock.Mock }

func (m *notifierMock) NotifyApprovers(ctx context.Context, order *models.Order, approvers []models.User) error {
	return m.Called(ctx, order, approvers).Error(0)
}

// notified returns the usernames of every NotifyApprovers call.
func (m *notifierMock) notified() [][]string {
	var result [][]string
	for _, call := range m.Calls {
		var names []string
		for _, u := range call.Arguments.Get(2).([]models.User) {
			names = append(names, u.Username)
		}
		result = append(result, names)
	}
	return result
}

type publisherMock struct{ mock.Mock }

func (m *publisherMock) Publish(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *publisherMock) published() []string {
	var types []string
	for _, call := range m.Calls {
		types = append(types, call.Arguments.Get(1).(events.Event).Type)
	}
	return types
}

type fixture struct {
	ctx       context.Context
	db        *gorm.DB
	orders    *repositories.OrderRepository
	groups    *repositories.GroupRepository
	users     *repositories.UserRepository
	runner    *hooks.Runner
	notifier  *notifierMock
	publisher *publisherMock
	svc       *Service

	workers, it, finance *models.Group
	alice, bob, carol    *models.User
}

// newFixture sets up Workers under IT, and Finance. alice requests for Workers, bob approves
// for IT and carol approves for Finance.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		ctx:       context.Background(),
		db:        db,
		orders:    repositories.NewOrderRepository(db),
		groups:    repositories.NewGroupRepository(db),
		users:     repositories.NewUserRepository(db),
		runner:    hooks.NewRunner(quietLogger()),
		notifier:  &notifierMock{},
		publisher: &publisherMock{},
	}
	f.notifier.On("NotifyApprovers", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.svc = NewService(f.orders, f.groups, f.users, f.runner, nil, f.notifier, f.publisher, quietLogger())

	f.it = f.group(t, "IT", nil)
	f.finance = f.group(t, "Finance", nil)
	f.workers = f.group(t, "Workers", &f.it.ID)

	f.alice = f.user(t, "alice")
	f.bob = f.user(t, "bob")
	f.carol = f.user(t, "carol")
	f.grant(t, f.alice, f.workers, models.RoleRequestor)
	f.grant(t, f.bob, f.it, models.RoleApprover)
	f.grant(t, f.carol, f.finance, models.RoleApprover)

	require.NoError(t, f.groups.SetQuota(f.ctx, f.workers.ID, quota.Rate, 100))
	return f
}

func (f *fixture) group(t *testing.T, name string, parent *uuid.UUID) *models.Group {
	group := &models.Group{Name: name, ParentID: parent}
	require.NoError(t, f.groups.Create(f.ctx, group))
	return group
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	user := &models.User{Username: name, Email: name + "@example.com", IsActive: true}
	require.NoError(t, f.users.Create(f.ctx, user))
	return user
}

func (f *fixture) grant(t *testing.T, user *models.User, group *models.Group, role models.Role) {
	require.NoError(t, f.groups.AddMember(f.ctx, group.ID, user.ID, role))
}

func (f *fixture) register(t *testing.T, trigger hooks.Trigger, name string, hook hooks.Hook) {
	require.NoError(t, f.runner.Register(trigger, name, hook, nil))
}

func (f *fixture) submit(t *testing.T, rate float64) *models.Order {
	order, err := f.svc.Submit(f.ctx, SubmitRequest{OwnerID: f.alice.ID, GroupID: f.workers.ID, Name: "web", Rate: rate})
	require.NoError(t, err)
	return order
}

func (f *fixture) used(t *testing.T) float64 {
	group, err := f.groups.GetByID(f.ctx, f.workers.ID)
	require.NoError(t, err)
	return group.QuotaSet()[quota.Rate].Used
}

func eventTypes(order *models.Order) []models.EventType {
	var types []models.EventType
	for _, e := range order.Events {
		types = append(types, e.Type)
	}
	return types
}

func TestSubmitRoutesToNearestApproverGroup(t *testing.T) {
	f := newFixture(t)

	order := f.submit(t, 10)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, []string{"IT"}, order.ApprovalGroupNames())
	assert.Equal(t, []models.EventType{models.EventSubmitted}, eventTypes(order))
	assert.Equal(t, [][]string{{"bob"}}, f.notifier.notified())

	approved, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderActive, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, f.bob.ID, *approved.ApprovedBy)
	assert.NotNil(t, approved.ApproveDate)
	assert.Contains(t, eventTypes(approved), models.EventApproved)
	assert.Equal(t, 10.0, f.used(t))
	assert.Equal(t, []string{events.OrderActive}, f.publisher.published())
}

func TestSubmitRequiresRequestor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(f.ctx, SubmitRequest{OwnerID: f.bob.ID, GroupID: f.workers.ID, Rate: 1})
	assert.True(t, errdef.IsForbidden(err))

	_, err = f.svc.Submit(f.ctx, SubmitRequest{OwnerID: f.alice.ID, GroupID: f.workers.ID, Rate: -1})
	assert.True(t, errdef.IsBadRequest(err))

	f.grant(t, f.carol, f.it, models.RoleRequestor)
	order, err := f.svc.Submit(f.ctx, SubmitRequest{OwnerID: f.carol.ID, GroupID: f.workers.ID, Rate: 1})
	require.NoError(t, err, "a requestor of IT may order for Workers")
	assert.Equal(t, f.workers.ID, order.GroupID)
}

func TestApproveChecks(t *testing.T) {
	f := newFixture(t)
	workflow, err := NewWorkflow(Stage{MinApprovers: 2})
	require.NoError(t, err)
	f.register(t, hooks.OrderApproval, "two-users", &StagedApprovalHook{Workflow: workflow})

	order := f.submit(t, 10)

	_, err = f.svc.Approve(f.ctx, order.ID, f.carol.ID)
	assert.True(t, errdef.IsForbidden(err), "carol does not approve for IT")

	partial, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, partial.Status)
	assert.Contains(t, eventTypes(partial), models.EventPartiallyApproved)

	_, err = f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	assert.True(t, errdef.IsDuplicated(err))

	dave := f.user(t, "dave")
	f.grant(t, dave, f.it, models.RoleApprover)
	approved, err := f.svc.Approve(f.ctx, order.ID, dave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderActive, approved.Status)

	_, err = f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	assert.True(t, errdef.IsConflict(err))
}

func TestApproveWithoutDecisionStaysPending(t *testing.T) {
	f := newFixture(t)
	f.register(t, hooks.OrderApproval, "observer", hooks.HookFunc(func(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
		return hooks.Success("looked at it"), nil
	}))

	order := f.submit(t, 10)
	pending, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, pending.Status)
}

func failingApprovalHook(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
	return hooks.Failure("", "budget service unavailable"), nil
}

func TestApprovalHookFailureKeepsApproval(t *testing.T) {
	f := newFixture(t)
	f.register(t, hooks.OrderApproval, "budget", hooks.HookFunc(failingApprovalHook))

	order := f.submit(t, 10)
	_, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	var failure *hooks.FailureError
	require.ErrorAs(t, err, &failure)

	stored, err := f.orders.GetByID(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status)
	assert.Equal(t, []string{"bob"}, usernames(stored.Approvers()))
	assert.Contains(t, eventTypes(stored), models.EventComment)
}

func TestApprovalHookFailureLogsUnrecordedComment(t *testing.T) {
	f := newFixture(t)
	logger, entries := logtest.NewNullLogger()
	svc := NewService(f.orders, f.groups, f.users, f.runner, nil, f.notifier, f.publisher, logger)

	order := f.submit(t, 10)
	f.register(t, hooks.OrderApproval, "budget", hooks.HookFunc(func(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
		assert.NoError(t, f.db.Migrator().DropTable(&models.OrderEvent{}))
		return failingApprovalHook(ctx, hc)
	}))

	_, err := svc.Approve(f.ctx, order.ID, f.bob.ID)
	var failure *hooks.FailureError
	require.ErrorAs(t, err, &failure)

	var logged bool
	for _, entry := range entries.AllEntries() {
		if entry.Message == "Failed to record approval hook failure" {
			logged = true
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.Equal(t, order.ID, entry.Data["order"])
			assert.NotNil(t, entry.Data[logrus.ErrorKey])
		}
	}
	assert.True(t, logged)
}

func TestHierarchicalApproval(t *testing.T) {
	f := newFixture(t)
	workflow, err := NewWorkflow(Stage{Group: "Finance", MinApprovers: 1}, Stage{Group: "IT", MinApprovers: 2})
	require.NoError(t, err)
	f.register(t, hooks.OrderSubmission, "route", &FirstApproverHook{ApproverGroup: "Finance"})
	f.register(t, hooks.OrderApproval, "stages", &StagedApprovalHook{Workflow: workflow})
	f.register(t, hooks.PreOrderExecution, "recheck", &PreExecutionCheckHook{Workflow: workflow})

	order := f.submit(t, 10)
	assert.Equal(t, []string{"Finance"}, order.ApprovalGroupNames())
	assert.Equal(t, [][]string{{"carol"}}, f.notifier.notified())

	_, err = f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	assert.True(t, errdef.IsForbidden(err), "IT cannot approve before Finance")

	routed, err := f.svc.Approve(f.ctx, order.ID, f.carol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, routed.Status)
	assert.Equal(t, []string{"IT"}, routed.ApprovalGroupNames())
	assert.Contains(t, eventTypes(routed), models.EventRouted)
	assert.Equal(t, [][]string{{"carol"}, {"bob"}}, f.notifier.notified())

	approved, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderActive, approved.Status)
	assert.Equal(t, []string{"carol", "bob"}, usernames(approved.Approvers()))
}

func usernames(users []models.User) []string {
	var names []string
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}

func TestSubmissionHookFailureDenies(t *testing.T) {
	f := newFixture(t)
	f.register(t, hooks.OrderSubmission, "route", &FirstApproverHook{ApproverGroup: "Audit"})

	order := f.submit(t, 10)
	assert.Equal(t, models.OrderDenied, order.Status)
	assert.Contains(t, order.DenyReason, "Audit")
	assert.NotNil(t, order.DenyDate)
	assert.Contains(t, eventTypes(order), models.EventDenied)
	assert.Empty(t, f.notifier.notified())
	assert.Equal(t, []string{events.OrderDenied}, f.publisher.published())
}

func TestPreExecutionFailureFailsOrder(t *testing.T) {
	f := newFixture(t)
	f.register(t, hooks.PreOrderExecution, "provisioner-check", hooks.HookFunc(func(ctx context.Context, hc *hooks.Context) (hooks.Result, error) {
		return hooks.Failure("", "no capacity left"), nil
	}))

	order := f.submit(t, 10)
	failed, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, failed.Status)
	assert.Contains(t, eventTypes(failed), models.EventApproved)
	assert.Contains(t, eventTypes(failed), models.EventFailed)
	assert.Equal(t, 0.0, f.used(t))
	assert.Equal(t, []string{events.OrderFailed}, f.publisher.published())
}

func TestApproveOverQuotaConflicts(t *testing.T) {
	f := newFixture(t)

	order := f.submit(t, 150)
	_, err := f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	assert.True(t, errdef.IsConflict(err))

	reloaded, err := f.orders.GetByID(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, reloaded.Status)
	assert.Equal(t, 0.0, f.used(t))
}

func TestAutoApproval(t *testing.T) {
	t.Run("group approves automatically", func(t *testing.T) {
		f := newFixture(t)
		f.workers.AutoApprove = true
		require.NoError(t, f.groups.Update(f.ctx, f.workers))

		order := f.submit(t, 10)
		assert.Equal(t, models.OrderActive, order.Status)
		assert.Nil(t, order.ApprovedBy)
		assert.Empty(t, f.notifier.notified())
	})

	t.Run("over quota is denied", func(t *testing.T) {
		f := newFixture(t)
		f.workers.AutoApprove = true
		require.NoError(t, f.groups.Update(f.ctx, f.workers))

		order := f.submit(t, 500)
		assert.Equal(t, models.OrderDenied, order.Status)
		assert.Contains(t, order.DenyReason, "rate")
	})

	t.Run("owner is an approver", func(t *testing.T) {
		f := newFixture(t)
		f.grant(t, f.alice, f.it, models.RoleApprover)

		order := f.submit(t, 10)
		assert.Equal(t, models.OrderActive, order.Status)
		require.NotNil(t, order.ApprovedBy)
		assert.Equal(t, f.alice.ID, *order.ApprovedBy)
	})

	t.Run("rate below threshold", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, hooks.OrderSubmission, "rate", &RateThresholdHook{Threshold: 20})

		cheap := f.submit(t, 5)
		assert.Equal(t, models.OrderActive, cheap.Status)

		expensive := f.submit(t, 50)
		assert.Equal(t, models.OrderPending, expensive.Status)
		assert.Contains(t, eventTypes(expensive), models.EventComment)
		assert.Equal(t, 5.0, f.used(t))
	})
}

func TestDeny(t *testing.T) {
	f := newFixture(t)
	order := f.submit(t, 10)

	_, err := f.svc.Deny(f.ctx, order.ID, f.carol.ID, "no")
	assert.True(t, errdef.IsForbidden(err))

	denied, err := f.svc.Deny(f.ctx, order.ID, f.bob.ID, "not this quarter")
	require.NoError(t, err)
	assert.Equal(t, models.OrderDenied, denied.Status)
	assert.Equal(t, "not this quarter", denied.DenyReason)

	_, err = f.svc.Approve(f.ctx, order.ID, f.bob.ID)
	assert.True(t, errdef.IsConflict(err))
	_, err = f.svc.Deny(f.ctx, order.ID, f.bob.ID, "")
	assert.True(t, errdef.IsConflict(err))
}

func TestSuperAdminCanApprove(t *testing.T) {
	f := newFixture(t)
	admin := &models.User{Username: "root", Email: "root@example.com", IsActive: true, IsSuperAdmin: true}
	require.NoError(t, f.users.Create(f.ctx, admin))

	order := f.submit(t, 10)
	approved, err := f.svc.Approve(f.ctx, order.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderActive, approved.Status)
}
