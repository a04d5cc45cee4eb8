package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/events"
	"github.com/mhrivnak/orderflow/pkg/hooks"
	"github.com/mhrivnak/orderflow/pkg/lock"
	"github.com/mhrivnak/orderflow/pkg/metrics"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

// Notifier tells approvers that an order waits for them.
type Notifier interface {
	NotifyApprovers(ctx context.Context, order *models.Order, approvers []models.User) error
}

// Publisher hands order events to the job engine.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service moves orders through submission, approval and activation.
type Service struct {
	orders    *repositories.OrderRepository
	groups    *repositories.GroupRepository
	users     *repositories.UserRepository
	runner    *hooks.Runner
	locker    lock.Locker
	notifier  Notifier
	publisher Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewService wires the order service. A nil locker serializes approvals within this process
// only; a nil notifier or publisher is skipped.
func NewService(
	orders *repositories.OrderRepository,
	groups *repositories.GroupRepository,
	users *repositories.UserRepository,
	runner *hooks.Runner,
	locker lock.Locker,
	notifier Notifier,
	publisher Publisher,
	log logrus.FieldLogger,
) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if runner == nil {
		runner = hooks.NewRunner(log)
	}
	return &Service{
		orders:    orders,
		groups:    groups,
		users:     users,
		runner:    runner,
		locker:    locker,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type SubmitRequest struct {
	OwnerID  uuid.UUID
	GroupID  uuid.UUID
	Name     string
	Comment  string
	Rate     float64
	CPUCount float64
	MemSize  float64
	DiskSize float64
	VMCount  float64
}

func (r SubmitRequest) usage() quota.Usage {
	return quota.Usage{
		quota.Rate:     r.Rate,
		quota.CPUCount: r.CPUCount,
		quota.MemSize:  r.MemSize,
		quota.DiskSize: r.DiskSize,
		quota.VMCount:  r.VMCount,
	}
}

// mayRequest reports whether user is a requestor of group or of a group above it.
func (s *Service) mayRequest(ctx context.Context, user *models.User, group *models.Group) (bool, error) {
	if user.IsSuperAdmin || user.HasRole(group.Name, models.RoleRequestor) {
		return true, nil
	}
	hierarchy, err := s.groups.Hierarchy(ctx)
	if err != nil {
		return false, err
	}
	ancestors, err := hierarchy.Ancestors(group.Name)
	if err != nil {
		return false, err
	}
	for _, name := range ancestors {
		if user.HasRole(name, models.RoleRequestor) {
			return true, nil
		}
	}
	return false, nil
}

// Submit creates a pending order and runs the submission hooks. Depending on their outcome
// the order is approved, denied, or routed to its approval groups whose approvers get notified.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Order, error) {
	for attr, amount := range req.usage() {
		if amount < 0 {
			return nil, errdef.NewBadRequest("%s cannot be negative", attr)
		}
	}
	owner, err := s.users.GetByID(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	group, err := s.groups.GetByID(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.mayRequest(ctx, owner, group)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errdef.NewForbidden("user %s cannot submit orders for group %s", owner.Username, group.Name)
	}

	order := &models.Order{
		Name:     req.Name,
		Status:   models.OrderPending,
		OwnerID:  owner.ID,
		GroupID:  group.ID,
		Rate:     req.Rate,
		CPUCount: req.CPUCount,
		MemSize:  req.MemSize,
		DiskSize: req.DiskSize,
		VMCount:  req.VMCount,
		Comment:  req.Comment,
	}
	err = s.orders.Transaction(ctx, func(tx *repositories.OrderRepository) error {
		if err := tx.Create(ctx, order); err != nil {
			return err
		}
		return tx.AddEvent(ctx, &models.OrderEvent{
			OrderID: order.ID,
			Type:    models.EventSubmitted,
			Message: fmt.Sprintf("Submitted by %s for group %s", owner.Username, group.Name),
			UserID:  &owner.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	metrics.RecordOrderTransition("", string(models.OrderPending))

	order, err = s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"order": order.ID, "group": group.Name})

	hc := hooks.NewOrderContext(order, s.groups, s.log)
	if _, err := s.runner.Run(ctx, hooks.OrderSubmission, hc); err != nil {
		var failure *hooks.FailureError
		if !errors.As(err, &failure) {
			return nil, err
		}
		log.WithError(err).Warn("Submission hook failed, denying order")
		return s.deny(ctx, order.ID, nil, failure.Error())
	}
	if err := s.addComments(ctx, order.ID, hc.Comments()); err != nil {
		return nil, err
	}

	approvalGroups, assigned := hc.ApprovalGroups()
	if !assigned || len(approvalGroups) == 0 {
		approvalGroups = nil
		nearest, err := s.groups.NearestWithRole(ctx, group.Name, models.RoleApprover)
		switch {
		case err == nil:
			approvalGroups = []models.Group{*nearest}
		case errdef.IsNotFound(err):
			log.Warn("No group in the hierarchy has approvers, only super admins can approve the order")
		default:
			return nil, err
		}
	}
	if len(approvalGroups) > 0 {
		if err := s.orders.SetApprovalGroups(ctx, order, approvalGroups); err != nil {
			return nil, fmt.Errorf("failed to assign approval groups: %w", err)
		}
	}
	order.ApprovalGroups = approvalGroups

	if decision, ok := hc.Decision(); ok {
		metrics.RecordApprovalDecision(string(decision.Outcome))
		switch decision.Outcome {
		case hooks.OutcomeApproved:
			log.WithField("reason", decision.Reason).Info("Order approved at submission")
			return s.autoApprove(ctx, order.ID)
		case hooks.OutcomeDenied:
			return s.deny(ctx, order.ID, nil, decision.Reason)
		}
	}
	if group.AutoApprove {
		log.Info("Group approves its orders automatically")
		return s.autoApprove(ctx, order.ID)
	}

	if eligible(owner, approvalGroups) {
		log.Info("Owner is an approver of the order, approving on their behalf")
		approved, err := s.Approve(ctx, order.ID, owner.ID)
		if err != nil {
			return nil, err
		}
		if approved.Status != models.OrderPending {
			return approved, nil
		}
		order = approved
	}

	s.notify(ctx, order, order.ApprovalGroups)
	return s.orders.GetByID(ctx, order.ID)
}

// autoApprove activates an order nobody approved by hand. An order that does not fit its
// group's quota is denied rather than left pending.
func (s *Service) autoApprove(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.activate(ctx, orderID, nil)
	if errdef.IsConflict(err) {
		return s.deny(ctx, orderID, nil, err.Error())
	}
	return order, err
}

// Approve records the user's approval and applies the decision of the approval hooks. With no
// approval hooks registered a single approval approves the order.
func (s *Service) Approve(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	release, err := s.locker.Acquire(ctx, "order:"+orderID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}
	defer release()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, errdef.NewConflict("order %s is %s, only pending orders can be approved", orderID, order.Status)
	}
	user, err := s.approver(ctx, order, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.AddApproval(ctx, orderID, userID); err != nil {
		return nil, err
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	decision := hooks.Approved("approved by " + user.Username)
	if s.runner.Has(hooks.OrderApproval) {
		hc := hooks.NewOrderContext(order, s.groups, s.log)
		if _, err := s.runner.Run(ctx, hooks.OrderApproval, hc); err != nil {
			var failure *hooks.FailureError
			if errors.As(err, &failure) {
				event := &models.OrderEvent{
					OrderID: orderID,
					Type:    models.EventComment,
					Message: failure.Error(),
					UserID:  &user.ID,
				}
				if eventErr := s.orders.AddEvent(ctx, event); eventErr != nil {
					s.log.WithError(eventErr).WithField("order", orderID).Warn("Failed to record approval hook failure")
				}
			}
			return nil, err
		}
		if err := s.addComments(ctx, orderID, hc.Comments()); err != nil {
			return nil, err
		}
		var ok bool
		if decision, ok = hc.Decision(); !ok {
			decision = hooks.Pending("no approval hook made a decision")
		}
	}
	metrics.RecordApprovalDecision(string(decision.Outcome))
	s.log.WithFields(logrus.Fields{"order": orderID, "approver": user.Username, "decision": decision.String()}).
		Info("Order approval evaluated")

	return s.apply(ctx, order, user, decision)
}

func (s *Service) apply(ctx context.Context, order *models.Order, user *models.User, decision hooks.Decision) (*models.Order, error) {
	switch decision.Outcome {
	case hooks.OutcomeApproved:
		return s.activate(ctx, order.ID, &user.ID)
	case hooks.OutcomeDenied:
		return s.deny(ctx, order.ID, &user.ID, decision.Reason)
	case hooks.OutcomeAdvance:
		group, err := s.groups.GetByName(ctx, decision.Group)
		if err != nil {
			return nil, err
		}
		if names := order.ApprovalGroupNames(); len(names) == 1 && names[0] == group.Name {
			break
		}
		err = s.orders.Transaction(ctx, func(tx *repositories.OrderRepository) error {
			if err := tx.SetApprovalGroups(ctx, order, []models.Group{*group}); err != nil {
				return err
			}
			return tx.AddEvent(ctx, &models.OrderEvent{
				OrderID: order.ID,
				Type:    models.EventRouted,
				Message: fmt.Sprintf("Routed to %s: %s", group.Name, decision.Reason),
				UserID:  &user.ID,
			})
		})
		if err != nil {
			return nil, err
		}
		order.ApprovalGroups = []models.Group{*group}
		s.notify(ctx, order, order.ApprovalGroups)
		return s.orders.GetByID(ctx, order.ID)
	}

	err := s.orders.AddEvent(ctx, &models.OrderEvent{
		OrderID: order.ID,
		Type:    models.EventPartiallyApproved,
		Message: fmt.Sprintf("Approved by %s: %s", user.Username, decision.Reason),
		UserID:  &user.ID,
	})
	if err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, order.ID)
}

// Deny rejects a pending order.
func (s *Service) Deny(ctx context.Context, orderID, userID uuid.UUID, reason string) (*models.Order, error) {
	release, err := s.locker.Acquire(ctx, "order:"+orderID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}
	defer release()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, errdef.NewConflict("order %s is %s, only pending orders can be denied", orderID, order.Status)
	}
	user, err := s.approver(ctx, order, userID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "denied by " + user.Username
	}
	return s.deny(ctx, orderID, &user.ID, reason)
}

// approver loads the user and checks they may approve or deny the order.
func (s *Service) approver(ctx context.Context, order *models.Order, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errdef.NewForbidden("user %s is disabled", user.Username)
	}
	if !user.IsSuperAdmin && !eligible(user, order.ApprovalGroups) {
		return nil, errdef.NewForbidden("user %s is not an approver of order %s", user.Username, order.ID)
	}
	return user, nil
}

func eligible(user *models.User, groups []models.Group) bool {
	for _, group := range groups {
		if user.HasRole(group.Name, models.RoleApprover) {
			return true
		}
	}
	return false
}

// activate marks the order ACTIVE and commits its usage against the group quota, then runs
// the pre-execution hooks. A failing pre-execution hook leaves the order FAILED with its usage
// given back, and is not reported as an error.
func (s *Service) activate(ctx context.Context, orderID uuid.UUID, approvedBy *uuid.UUID) (*models.Order, error) {
	err := s.orders.Transaction(ctx, func(tx *repositories.OrderRepository) error {
		order, err := tx.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderActive) {
			return errdef.NewConflict("order %s is %s and cannot be activated", orderID, order.Status)
		}
		groups := repositories.NewGroupRepository(tx.DB())
		group, err := groups.GetByID(ctx, order.GroupID)
		if err != nil {
			return err
		}
		if err := group.QuotaSet().CanUse(order.NetUsage()); err != nil {
			return err
		}

		now := s.now()
		order.Status = models.OrderActive
		order.ApproveDate = &now
		order.ApprovedBy = approvedBy
		if err := tx.Update(ctx, order); err != nil {
			return err
		}
		if err := groups.AddUsage(ctx, order.GroupID, order.NetUsage()); err != nil {
			return err
		}
		return tx.AddEvent(ctx, &models.OrderEvent{
			OrderID: orderID,
			Type:    models.EventApproved,
			Message: "Order approved",
			UserID:  approvedBy,
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordOrderTransition(string(models.OrderPending), string(models.OrderActive))

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	hc := hooks.NewOrderContext(order, s.groups, s.log)
	if _, err := s.runner.Run(ctx, hooks.PreOrderExecution, hc); err != nil {
		var failure *hooks.FailureError
		if !errors.As(err, &failure) {
			return nil, err
		}
		return s.fail(ctx, order, failure)
	}

	s.publish(ctx, order, events.OrderActive)
	return order, nil
}

func (s *Service) fail(ctx context.Context, order *models.Order, failure *hooks.FailureError) (*models.Order, error) {
	s.log.WithField("order", order.ID).WithError(failure).Warn("Pre-execution hook failed")

	err := s.orders.Transaction(ctx, func(tx *repositories.OrderRepository) error {
		order.Status = models.OrderFailed
		if err := tx.Update(ctx, order); err != nil {
			return err
		}
		release := quota.Usage{}
		for attr, amount := range order.NetUsage() {
			release[attr] = -amount
		}
		if err := repositories.NewGroupRepository(tx.DB()).AddUsage(ctx, order.GroupID, release); err != nil {
			return err
		}
		return tx.AddEvent(ctx, &models.OrderEvent{
			OrderID: order.ID,
			Type:    models.EventFailed,
			Message: failure.Error(),
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordOrderTransition(string(models.OrderActive), string(models.OrderFailed))

	s.publish(ctx, order, events.OrderFailed)
	return s.orders.GetByID(ctx, order.ID)
}

func (s *Service) deny(ctx context.Context, orderID uuid.UUID, deniedBy *uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.orders.Transaction(ctx, func(tx *repositories.OrderRepository) error {
		var err error
		order, err = tx.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderDenied) {
			return errdef.NewConflict("order %s is %s and cannot be denied", orderID, order.Status)
		}
		now := s.now()
		order.Status = models.OrderDenied
		order.DenyReason = reason
		order.DenyDate = &now
		if err := tx.Update(ctx, order); err != nil {
			return err
		}
		return tx.AddEvent(ctx, &models.OrderEvent{
			OrderID: orderID,
			Type:    models.EventDenied,
			Message: reason,
			UserID:  deniedBy,
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordOrderTransition(string(models.OrderPending), string(models.OrderDenied))

	s.publish(ctx, order, events.OrderDenied)
	return s.orders.GetByID(ctx, orderID)
}

func (s *Service) addComments(ctx context.Context, orderID uuid.UUID, comments []string) error {
	for _, comment := range comments {
		err := s.orders.AddEvent(ctx, &models.OrderEvent{OrderID: orderID, Type: models.EventComment, Message: comment})
		if err != nil {
			return err
		}
	}
	return nil
}

// notify e-mails the approvers of groups. Failures are logged, the order is already saved.
func (s *Service) notify(ctx context.Context, order *models.Order, groups []models.Group) {
	if s.notifier == nil || len(groups) == 0 {
		return
	}
	var approvers []models.User
	seen := make(map[uuid.UUID]bool)
	for _, group := range groups {
		members, err := s.groups.Members(ctx, group.ID, models.RoleApprover)
		if err != nil {
			s.log.WithError(err).WithField("group", group.Name).Error("Failed to list approvers")
			continue
		}
		for _, member := range members {
			if !seen[member.ID] {
				seen[member.ID] = true
				approvers = append(approvers, member)
			}
		}
	}
	if err := s.notifier.NotifyApprovers(ctx, order, approvers); err != nil {
		s.log.WithError(err).WithField("order", order.ID).Error("Failed to notify approvers")
	}
}

func (s *Service) publish(ctx context.Context, order *models.Order, eventType string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		OrderID:    order.ID,
		Status:     string(order.Status),
		GroupID:    order.GroupID,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.log.WithError(err).WithField("order", order.ID).Error("Failed to publish order event")
	}
}
