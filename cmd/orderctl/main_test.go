package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrivnak/orderflow/pkg/approval"
	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/database"
	"github.com/mhrivnak/orderflow/pkg/database/dbtest"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/hooks"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &app{cfg: &config.Config{}, log: log, db: database.Wrap(dbtest.New(t), log)}
}

// run executes orderctl with args and returns what it printed.
func run(a *app, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(a)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, err := run(a, args...)
	require.NoError(t, err, "orderctl %v", args)
	return out
}

func TestAdminCommands(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	mustRun(t, a, "user", "create", "alice", "alice@example.com", "--password", "secret-password")
	mustRun(t, a, "group", "create", "IT")
	mustRun(t, a, "group", "create", "Workers", "--parent", "IT", "--auto-approve")
	mustRun(t, a, "group", "add-member", "Workers", "alice", "requestor")
	mustRun(t, a, "group", "set-quota", "Workers", "rate", "100")

	users := repositories.NewUserRepository(a.db.DB)
	alice, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.CheckPassword("secret-password"))
	assert.True(t, alice.HasRole("Workers", models.RoleRequestor))

	groups := repositories.NewGroupRepository(a.db.DB)
	workers, err := groups.GetByName(ctx, "Workers")
	require.NoError(t, err)
	assert.True(t, workers.AutoApprove)
	require.NotNil(t, workers.ParentID)
	assert.Equal(t, 100.0, workers.QuotaSet()["rate"].Limit)

	out := mustRun(t, a, "group", "list")
	assert.Contains(t, out, "Workers")
	assert.Regexp(t, `Workers\s+IT\s+true`, out)

	out = mustRun(t, a, "user", "list")
	assert.Contains(t, out, "alice@example.com")

	mustRun(t, a, "group", "set-parent", "Workers")
	workers, err = groups.GetByName(ctx, "Workers")
	require.NoError(t, err)
	assert.Nil(t, workers.ParentID)
}

func TestAdminCommandErrors(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "group", "create", "IT")
	mustRun(t, a, "group", "create", "Workers", "--parent", "IT")

	_, err := run(a, "group", "create", "IT")
	assert.True(t, errdef.IsDuplicated(err))

	_, err = run(a, "user", "create", "bob", "bob@example.com", "--password", "short")
	assert.True(t, errdef.IsBadRequest(err))

	_, err = run(a, "group", "add-member", "IT", "nobody", "chief")
	assert.True(t, errdef.IsBadRequest(err))

	_, err = run(a, "group", "add-member", "IT", "nobody", "approver")
	assert.True(t, errdef.IsNotFound(err))

	_, err = run(a, "group", "set-quota", "IT", "gpus", "4")
	assert.True(t, errdef.IsBadRequest(err))

	_, err = run(a, "group", "set-parent", "IT", "Workers")
	assert.Error(t, err, "IT cannot move below its own child")
}

type runHookFixture struct {
	app   *app
	order *models.Order
}

func newRunHookFixture(t *testing.T) runHookFixture {
	t.Helper()
	a := newTestApp(t)
	a.cfg.Approval = config.Approval{
		Parameters: map[string]string{"approver_group": "IT"},
		Hooks: []config.HookConfig{{
			Name:   "first-approver",
			Type:   approval.TypeFirstApproverGroup,
			Params: map[string]string{"group": "{{ approver_group }}"},
		}},
	}
	mustRun(t, a, "user", "create", "alice", "alice@example.com", "--password", "secret-password")
	mustRun(t, a, "group", "create", "IT")
	mustRun(t, a, "group", "create", "Finance")
	mustRun(t, a, "group", "create", "Workers", "--parent", "IT")

	ctx := context.Background()
	alice, err := repositories.NewUserRepository(a.db.DB).GetByUsername(ctx, "alice")
	require.NoError(t, err)
	workers, err := repositories.NewGroupRepository(a.db.DB).GetByName(ctx, "Workers")
	require.NoError(t, err)

	order := &models.Order{Name: "web", OwnerID: alice.ID, GroupID: workers.ID, Rate: 5}
	require.NoError(t, repositories.NewOrderRepository(a.db.DB).Create(ctx, order))
	return runHookFixture{app: a, order: order}
}

func TestRunHook(t *testing.T) {
	f := newRunHookFixture(t)
	id := f.order.ID.String()

	out := mustRun(t, f.app, "run-hook", "order_submission", id)
	assert.Contains(t, out, "trigger: order_submission")
	assert.Contains(t, out, "hook: first-approver")
	assert.Contains(t, out, "approval_groups:\n  - IT\n")

	order, err := repositories.NewOrderRepository(f.app.db.DB).GetByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Empty(t, order.ApprovalGroups, "run-hook does not save assignments")

	out = mustRun(t, f.app, "run-hook", "order_approval", id)
	assert.Contains(t, out, "executions: []")
	assert.NotContains(t, out, "decision:")
}

func TestRunHookParamsFile(t *testing.T) {
	f := newRunHookFixture(t)
	id := f.order.ID.String()
	dir := t.TempDir()

	finance := filepath.Join(dir, "finance.yaml")
	require.NoError(t, os.WriteFile(finance, []byte("approver_group: Finance\n"), 0o600))
	out := mustRun(t, f.app, "run-hook", "order_submission", id, "--params", finance)
	assert.Contains(t, out, "approval_groups:\n  - Finance\n")

	missing := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("approver_group: Nowhere\n"), 0o600))
	out, err := run(f.app, "run-hook", "order_submission", id, "--params", missing)
	var failure *hooks.FailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, hooks.StatusFailure, failure.Result.Status)
	assert.Contains(t, out, "status: FAILURE")
	assert.Contains(t, out, "failure:")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("- not\n- a map\n"), 0o600))
	_, err = run(f.app, "run-hook", "order_submission", id, "--params", broken)
	assert.True(t, errdef.IsBadRequest(err))
}

func TestRunHookArguments(t *testing.T) {
	f := newRunHookFixture(t)

	_, err := run(f.app, "run-hook", "order_shipping", f.order.ID.String())
	assert.True(t, errdef.IsBadRequest(err))

	_, err = run(f.app, "run-hook", "order_submission", "not-a-uuid")
	assert.True(t, errdef.IsBadRequest(err))

	_, err = run(f.app, "run-hook", "order_submission", "00000000-0000-0000-0000-000000000001")
	assert.True(t, errdef.IsNotFound(err))
}

func TestOrderList(t *testing.T) {
	f := newRunHookFixture(t)

	out := mustRun(t, f.app, "order", "list")
	assert.Contains(t, out, f.order.ID.String())
	assert.Regexp(t, `web\s+PENDING\s+Workers`, out)

	out = mustRun(t, f.app, "order", "list", "--status", "active")
	assert.NotContains(t, out, f.order.ID.String())

	_, err := run(f.app, "order", "list", "--status", "shipped")
	assert.True(t, errdef.IsBadRequest(err))
}
