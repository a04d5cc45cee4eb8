package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrivnak/orderflow/pkg/quota"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPending, OrderPending, true},
		{OrderPending, OrderActive, true},
		{OrderPending, OrderDenied, true},
		{OrderPending, OrderFailed, false},
		{OrderActive, OrderFailed, true},
		{OrderActive, OrderDenied, false},
		{OrderActive, OrderPending, false},
		{OrderDenied, OrderActive, false},
		{OrderFailed, OrderActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, OrderFailed.Valid())
	assert.False(t, OrderStatus("SHIPPED").Valid())
	assert.True(t, RoleResourceAdmin.Valid())
	assert.False(t, Role("owner").Valid())
}

func TestUserPassword(t *testing.T) {
	user := &User{Username: "alice"}
	require.NoError(t, user.SetPassword("correct horse"))
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	assert.True(t, user.CheckPassword("correct horse"))
	assert.False(t, user.CheckPassword("battery staple"))
}

func TestUserRoles(t *testing.T) {
	it := &Group{Name: "IT"}
	finance := &Group{Name: "Finance"}
	user := &User{Memberships: []GroupMembership{
		{Role: RoleApprover, Group: it},
		{Role: RoleRequestor, Group: it},
		{Role: RoleApprover, Group: finance},
		{Role: RoleApprover, Group: it},
		{Role: RoleViewer},
	}}

	assert.True(t, user.HasRole("IT", RoleRequestor))
	assert.False(t, user.HasRole("Finance", RoleRequestor))
	assert.Equal(t, []string{"IT", "Finance"}, user.GroupNames(RoleApprover))
	assert.Empty(t, user.GroupNames(RoleUserAdmin))
}

func TestOrderApprovers(t *testing.T) {
	now := time.Now()
	order := &Order{Approvals: []OrderApproval{
		{CreatedAt: now.Add(2 * time.Minute), User: &User{Username: "carol"}},
		{CreatedAt: now, User: &User{Username: "alice"}},
		{CreatedAt: now.Add(time.Minute), User: &User{Username: "bob"}},
		{CreatedAt: now.Add(3 * time.Minute)},
	}}

	var names []string
	for _, u := range order.Approvers() {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)
	assert.Equal(t, "carol", order.Approvals[0].User.Username, "approvals are not reordered in place")
}

func TestOrderUsageAndGroups(t *testing.T) {
	order := &Order{
		Rate: 12.5, CPUCount: 4, MemSize: 16, DiskSize: 100, VMCount: 2,
		ApprovalGroups: []Group{{Name: "Finance"}, {Name: "IT"}},
	}
	assert.Equal(t, quota.Usage{
		quota.Rate: 12.5, quota.CPUCount: 4, quota.MemSize: 16, quota.DiskSize: 100, quota.VMCount: 2,
	}, order.NetUsage())
	assert.Equal(t, []string{"Finance", "IT"}, order.ApprovalGroupNames())
	assert.Empty(t, (&Order{}).ApprovalGroupNames())
}

func TestGroupQuotaSet(t *testing.T) {
	group := &Group{Quotas: []Quota{
		{Attribute: "rate", Limit: 100, Used: 40},
		{Attribute: "vm_cnt", Limit: 0, Used: 7},
	}}
	assert.Equal(t, quota.Set{
		quota.Rate:    {Limit: 100, Used: 40},
		quota.VMCount: {Limit: 0, Used: 7},
	}, group.QuotaSet())
}
