package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/pagination"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// OrderFilter narrows List. Zero values match everything.
type OrderFilter struct {
	Status  models.OrderStatus
	OwnerID uuid.UUID
	GroupID uuid.UUID
	// ApprovalGroupIDs matches orders routed to any of the groups.
	ApprovalGroupIDs []uuid.UUID
}

// Transaction runs fn with a repository bound to a single database transaction.
func (r *OrderRepository) Transaction(ctx context.Context, fn func(repo *OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewOrderRepository(tx))
	})
}

// DB returns the handle the repository is bound to.
func (r *OrderRepository) DB() *gorm.DB {
	return r.db
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order cannot be nil")
	}
	return r.db.WithContext(ctx).Omit("ApprovalGroups.*", "Owner", "Group", "Approvals", "Events").Create(order).Error
}

// GetByID loads the order with everything the approval hooks look at: the owner, the group
// and its quota, the approval groups, and the approvers with their memberships.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Owner.Memberships.Group").
		Preload("Group.Quotas").
		Preload("ApprovalGroups").
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Approvals.User.Memberships.Group").
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, notFound(err, "order %s", id)
	}
	return &order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter OrderFilter, limit, offset int, sort string) ([]models.Order, int64, error) {
	limit, offset = pagination.ClampPaginationParams(limit, offset)
	order := pagination.SanitizeSortOrder(sort, pagination.OrderSortColumns, "created_at DESC")

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OwnerID != uuid.Nil {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.GroupID != uuid.Nil {
		query = query.Where("group_id = ?", filter.GroupID)
	}
	if len(filter.ApprovalGroupIDs) > 0 {
		query = query.Where("id IN (?)", r.db.Table("order_approval_groups").
			Select("order_id").Where("group_id IN ?", filter.ApprovalGroupIDs))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := query.Preload("Group").Preload("ApprovalGroups").Order(order).Limit(limit).Offset(offset).Find(&orders).Error
	return orders, total, err
}

// Update saves the order's own columns. Associations are managed by the dedicated methods.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order cannot be nil")
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

// SetApprovalGroups replaces the groups responsible for approving the order.
func (r *OrderRepository) SetApprovalGroups(ctx context.Context, order *models.Order, groups []models.Group) error {
	refs := make([]models.Group, len(groups))
	for i, group := range groups {
		refs[i] = models.Group{ID: group.ID, Name: group.Name}
	}
	return r.db.WithContext(ctx).Model(order).Association("ApprovalGroups").Replace(refs)
}

// AddApproval records that the user approved the order. Approving twice is a duplicate error.
func (r *OrderRepository) AddApproval(ctx context.Context, orderID, userID uuid.UUID) (*models.OrderApproval, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderApproval{}).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errdef.NewDuplicated("user %s already approved order %s", userID, orderID)
	}

	approval := &models.OrderApproval{OrderID: orderID, UserID: userID}
	if err := r.db.WithContext(ctx).Create(approval).Error; err != nil {
		return nil, err
	}
	return approval, nil
}

func (r *OrderRepository) AddEvent(ctx context.Context, event *models.OrderEvent) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	return r.db.WithContext(ctx).Create(event).Error
}
