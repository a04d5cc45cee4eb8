package approval

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrivnak/orderflow/pkg/database/dbtest"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

type directory map[string]models.Group

func (d directory) GetByName(ctx context.Context, name string) (*models.Group, error) {
	group, ok := d[name]
	if !ok {
		return nil, errdef.NewNotFound("group %q not found", name)
	}
	return &group, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func orderIn(group string, quotas ...models.Quota) *models.Order {
	return &models.Order{
		Status: models.OrderPending,
		Group:  &models.Group{Name: group, Quotas: quotas},
	}
}

func TestFirstApproverHook(t *testing.T) {
	groups := directory{"IT": {Name: "IT"}}

	t.Run("assigns the approver group", func(t *testing.T) {
		hc := hooks.NewOrderContext(orderIn("Workers"), groups, quietLogger())
		result, err := (&FirstApproverHook{ApproverGroup: "IT"}).Run(context.Background(), hc)
		require.NoError(t, err)
		assert.Equal(t, hooks.StatusNone, result.Status)

		assigned, changed := hc.ApprovalGroups()
		assert.True(t, changed)
		require.Len(t, assigned, 1)
		assert.Equal(t, "IT", assigned[0].Name)
		assert.Equal(t, []string{"IT"}, hc.Order.ApprovalGroupNames())
	})

	t.Run("skips groups outside the source groups", func(t *testing.T) {
		hc := hooks.NewOrderContext(orderIn("Sales"), groups, quietLogger())
		result, err := (&FirstApproverHook{SourceGroups: []string{"Workers"}, ApproverGroup: "IT"}).Run(context.Background(), hc)
		require.NoError(t, err)
		assert.Equal(t, hooks.StatusNone, result.Status)
		_, changed := hc.ApprovalGroups()
		assert.False(t, changed)
	})

	t.Run("missing group is a failure result", func(t *testing.T) {
		hc := hooks.NewOrderContext(orderIn("Workers"), groups, quietLogger())
		result, err := (&FirstApproverHook{ApproverGroup: "Audit"}).Run(context.Background(), hc)
		require.NoError(t, err)
		assert.Equal(t, hooks.StatusFailure, result.Status)
		assert.Contains(t, result.Error, "Audit")
		_, changed := hc.ApprovalGroups()
		assert.False(t, changed)
	})

	t.Run("order without group", func(t *testing.T) {
		hc := hooks.NewOrderContext(&models.Order{}, groups, quietLogger())
		result, err := (&FirstApproverHook{ApproverGroup: "IT"}).Run(context.Background(), hc)
		require.NoError(t, err)
		assert.Equal(t, hooks.StatusFailure, result.Status)
	})
}

func TestFirstApproverHookPersists(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	groupRepo := repositories.NewGroupRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	userRepo := repositories.NewUserRepository(db)

	workers := &models.Group{Name: "Workers"}
	require.NoError(t, groupRepo.Create(ctx, workers))
	_, err := groupRepo.EnsureExists(ctx, "IT")
	require.NoError(t, err)
	owner := &models.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, userRepo.Create(ctx, owner))

	order := &models.Order{Name: "web", OwnerID: owner.ID, GroupID: workers.ID}
	require.NoError(t, orderRepo.Create(ctx, order))
	order, err = orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)

	hc := hooks.NewOrderContext(order, groupRepo, quietLogger())
	for i := 0; i < 2; i++ {
		result, err := (&FirstApproverHook{ApproverGroup: "IT"}).Run(ctx, hc)
		require.NoError(t, err)
		require.Equal(t, hooks.StatusNone, result.Status)
		assigned, _ := hc.ApprovalGroups()
		require.NoError(t, orderRepo.SetApprovalGroups(ctx, order, assigned))
	}

	reloaded, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"IT"}, reloaded.ApprovalGroupNames())
}

func TestStagedApprovalHook(t *testing.T) {
	workflow, err := NewWorkflow(Stage{Group: "Finance", MinApprovers: 1}, Stage{Group: "IT", MinApprovers: 2})
	require.NoError(t, err)
	hook := &StagedApprovalHook{Workflow: workflow}

	hc := &hooks.Context{Approvers: users(approverOf("carol", "Finance"))}
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, ok := hc.Decision()
	require.True(t, ok)
	assert.Equal(t, hooks.AdvanceTo("IT", decision.Reason), decision)

	// Running again with the same approvers leads to the same place.
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	again, _ := hc.Decision()
	assert.Equal(t, decision, again)
}

func TestPreExecutionCheckHook(t *testing.T) {
	workflow, err := NewWorkflow(Stage{Group: "Finance", MinApprovers: 1}, Stage{Group: "IT", MinApprovers: 2})
	require.NoError(t, err)
	hook := &PreExecutionCheckHook{Workflow: workflow}

	result, err := hook.Run(context.Background(), &hooks.Context{Approvers: users(approverOf("carol", "Finance"))})
	require.NoError(t, err)
	assert.Equal(t, hooks.StatusFailure, result.Status)
	assert.Contains(t, result.Error, "IT")

	result, err = hook.Run(context.Background(), &hooks.Context{
		Approvers: users(approverOf("carol", "Finance"), approverOf("bob", "IT")),
	})
	require.NoError(t, err)
	assert.Equal(t, hooks.Neutral(), result)
}

func TestThresholdSubmissionHook(t *testing.T) {
	hook := &ThresholdSubmissionHook{Threshold: 0.5, Attributes: []quota.Attribute{quota.Rate}}
	rate := models.Quota{Attribute: "rate", Limit: 100, Used: 10}

	order := orderIn("Workers", rate)
	order.Rate = 20
	hc := hooks.NewOrderContext(order, nil, nil)
	_, err := hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, ok := hc.Decision()
	require.True(t, ok)
	assert.Equal(t, hooks.OutcomeApproved, decision.Outcome)

	order = orderIn("Workers", rate)
	order.Rate = 40
	hc = hooks.NewOrderContext(order, nil, nil)
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	_, ok = hc.Decision()
	assert.False(t, ok, "reaching the threshold needs a manual approval")

	order = orderIn("Workers", models.Quota{Attribute: "rate", Limit: 0, Used: 1000})
	order.Rate = 1000
	hc = hooks.NewOrderContext(order, nil, nil)
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, ok = hc.Decision()
	require.True(t, ok, "unlimited quota never exceeds")
	assert.Equal(t, hooks.OutcomeApproved, decision.Outcome)
}

func TestThresholdApprovalHook(t *testing.T) {
	hook := &ThresholdApprovalHook{
		Threshold:    0.9,
		Attributes:   []quota.Attribute{quota.VMCount},
		Groups:       []string{"IT", "Finance"},
		MinApprovers: 2,
	}
	vms := models.Quota{Attribute: "vm_cnt", Limit: 10, Used: 5}

	small := orderIn("Workers", vms)
	small.VMCount = 1
	hc := hooks.NewOrderContext(small, nil, nil)
	hc.Approvers = users(approverOf("bob", "IT"))
	_, err := hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, _ := hc.Decision()
	assert.Equal(t, hooks.OutcomeApproved, decision.Outcome)

	large := orderIn("Workers", vms)
	large.VMCount = 4
	hc = hooks.NewOrderContext(large, nil, nil)
	hc.Approvers = users(approverOf("bob", "IT"))
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, _ = hc.Decision()
	assert.Equal(t, hooks.OutcomePending, decision.Outcome)
	assert.Contains(t, decision.Reason, "Finance")

	hc.Approvers = users(approverOf("bob", "IT"), approverOf("carol", "Finance"))
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, _ = hc.Decision()
	assert.Equal(t, hooks.OutcomeApproved, decision.Outcome)
}

func TestRateThresholdHook(t *testing.T) {
	hook := &RateThresholdHook{Threshold: 10}

	cheap := orderIn("Workers")
	cheap.Rate = 5
	hc := hooks.NewOrderContext(cheap, nil, nil)
	_, err := hook.Run(context.Background(), hc)
	require.NoError(t, err)
	decision, ok := hc.Decision()
	require.True(t, ok)
	assert.Equal(t, hooks.OutcomeApproved, decision.Outcome)

	expensive := orderIn("Workers")
	expensive.Rate = 10
	hc = hooks.NewOrderContext(expensive, nil, nil)
	_, err = hook.Run(context.Background(), hc)
	require.NoError(t, err)
	_, ok = hc.Decision()
	assert.False(t, ok)
	require.Len(t, hc.Comments(), 1)
	assert.Contains(t, hc.Comments()[0], "manual approval")

	active := orderIn("Workers")
	active.Status = models.OrderActive
	hc = hooks.NewOrderContext(active, nil, nil)
	result, err := hook.Run(context.Background(), hc)
	require.NoError(t, err)
	assert.Equal(t, hooks.StatusNone, result.Status)
	_, ok = hc.Decision()
	assert.False(t, ok)
}

func TestQuotaGuardHook(t *testing.T) {
	order := orderIn("Workers", models.Quota{Attribute: "cpu_cnt", Limit: 8, Used: 6})
	order.CPUCount = 4
	hc := hooks.NewOrderContext(order, nil, nil)

	result, err := (&QuotaGuardHook{}).Run(context.Background(), hc)
	require.NoError(t, err)
	assert.Equal(t, hooks.StatusWarning, result.Status)
	decision, ok := hc.Decision()
	require.True(t, ok)
	assert.Equal(t, hooks.OutcomeDenied, decision.Outcome)
	assert.Contains(t, decision.Reason, "cpu_cnt")
}
