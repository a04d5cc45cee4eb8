package hooks

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/database/models"
)

// GroupDirectory resolves groups by name.
type GroupDirectory interface {
	GetByName(ctx context.Context, name string) (*models.Group, error)
}

// Context is what a hook gets to look at and change. Fields that do not apply to a trigger
// point are nil.
type Context struct {
	Order *models.Order
	// Approvers of Order, oldest approval first.
	Approvers []models.User
	Server    *models.Server
	Groups    GroupDirectory
	Logger    logrus.FieldLogger
	// Params are the hook parameters after {{ }} substitution.
	Params map[string]string

	decision       *Decision
	approvalGroups []models.Group
	groupsChanged  bool
	comments       []string
}

// NewOrderContext builds the context for the order's trigger points.
func NewOrderContext(order *models.Order, groups GroupDirectory, logger logrus.FieldLogger) *Context {
	hc := &Context{Order: order, Groups: groups, Logger: logger}
	if order != nil {
		hc.Approvers = order.Approvers()
		if logger != nil {
			hc.Logger = logger.WithFields(logrus.Fields{"order": order.ID, "status": order.Status})
		}
	}
	return hc
}

// Decide records the decision of a hook. When several hooks decide, the last one wins.
func (c *Context) Decide(d Decision) {
	c.decision = &d
}

// Decision returns the recorded decision, if any hook made one.
func (c *Context) Decision() (Decision, bool) {
	if c.decision == nil {
		return Decision{}, false
	}
	return *c.decision, true
}

// AssignApprovalGroups replaces the approval groups of the order.
func (c *Context) AssignApprovalGroups(groups ...models.Group) {
	c.approvalGroups = groups
	c.groupsChanged = true
	if c.Order != nil {
		c.Order.ApprovalGroups = groups
	}
}

// ApprovalGroups returns the groups assigned by hooks and whether any hook assigned them.
func (c *Context) ApprovalGroups() ([]models.Group, bool) {
	return c.approvalGroups, c.groupsChanged
}

// AddComment queues a message to record in the order history.
func (c *Context) AddComment(msg string) {
	c.comments = append(c.comments, msg)
}

func (c *Context) Comments() []string {
	return c.comments
}

func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Log never returns nil.
func (c *Context) Log() logrus.FieldLogger {
	if c.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		c.Logger = discard
	}
	return c.Logger
}
