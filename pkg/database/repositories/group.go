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
	"github.com/mhrivnak/orderflow/pkg/groups"
	"github.com/mhrivnak/orderflow/pkg/quota"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group == nil {
		return errors.New("group cannot be nil")
	}
	if group.ParentID != nil {
		if _, err := r.GetByID(ctx, *group.ParentID); err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).Create(group).Error
}

// EnsureExists creates a group with name unless one already exists.
func (r *GroupRepository) EnsureExists(ctx context.Context, name string) (*models.Group, error) {
	group := models.Group{Name: name}
	err := r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Preload("Quotas").Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, notFound(err, "group %s", id)
	}
	return &group, nil
}

func (r *GroupRepository) GetByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Preload("Quotas").Where("name = ?", name).First(&group).Error
	if err != nil {
		return nil, notFound(err, "group %q", name)
	}
	return &group, nil
}

func (r *GroupRepository) List(ctx context.Context, limit, offset int, sort string) ([]models.Group, int64, error) {
	limit, offset = pagination.ClampPaginationParams(limit, offset)
	order := pagination.SanitizeSortOrder(sort, pagination.GroupSortColumns, "name ASC")

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Group{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var result []models.Group
	err := r.db.WithContext(ctx).Order(order).Limit(limit).Offset(offset).Find(&result).Error
	return result, total, err
}

func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	if group == nil {
		return errors.New("group cannot be nil")
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(group).Error
}

// Hierarchy loads every group into a parent/child graph.
func (r *GroupRepository) Hierarchy(ctx context.Context) (*groups.Hierarchy, error) {
	var all []models.Group
	if err := r.db.WithContext(ctx).Find(&all).Error; err != nil {
		return nil, err
	}
	return groups.NewHierarchy(all)
}

// SetParent moves a group under parent, or makes it a root when parent is nil. Changes that
// would create a cycle are rejected.
func (r *GroupRepository) SetParent(ctx context.Context, id uuid.UUID, parent *uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var all []models.Group
		if err := tx.Find(&all).Error; err != nil {
			return err
		}
		if parent != nil {
			if err := groups.ValidateParent(all, id, *parent); err != nil {
				return err
			}
		}
		result := tx.Model(&models.Group{}).Where("id = ?", id).Update("parent_id", parent)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errdef.NewNotFound("group %s not found", id)
		}
		return nil
	})
}

// AddMember grants role in the group to the user. Granting a role the user already holds is a no-op.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return errdef.NewBadRequest("unknown role %q", role)
	}
	membership := models.GroupMembership{GroupID: groupID, UserID: userID, Role: role}
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND role = ?", groupID, userID, role).
		FirstOrCreate(&membership).Error
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID, role models.Role) error {
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND role = ?", groupID, userID, role).
		Delete(&models.GroupMembership{}).Error
}

// Members returns the active users holding role in the group, with their memberships loaded.
func (r *GroupRepository) Members(ctx context.Context, groupID uuid.UUID, role models.Role) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Preload("Memberships.Group").
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ? AND group_memberships.role = ? AND users.is_active = ?", groupID, role, true).
		Order("users.username ASC").
		Find(&users).Error
	return users, err
}

// NearestWithRole walks from the named group up through its ancestors and returns the first
// group that has at least one active member holding role.
func (r *GroupRepository) NearestWithRole(ctx context.Context, name string, role models.Role) (*models.Group, error) {
	hierarchy, err := r.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	lineage, err := hierarchy.Lineage(name)
	if err != nil {
		return nil, err
	}

	for _, candidate := range lineage {
		group, _ := hierarchy.Group(candidate)
		var count int64
		err := r.db.WithContext(ctx).Model(&models.GroupMembership{}).
			Joins("JOIN users ON users.id = group_memberships.user_id").
			Where("group_memberships.group_id = ? AND group_memberships.role = ? AND users.is_active = ?", group.ID, role, true).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return &group, nil
		}
	}
	return nil, errdef.NewNotFound("no group in the lineage of %q has a member with role %s", name, role)
}

// WithRole returns the groups in which at least one active user holds role.
func (r *GroupRepository) WithRole(ctx context.Context, role models.Role) ([]models.Group, error) {
	var result []models.Group
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.GroupMembership{}).
			Select("group_memberships.group_id").
			Joins("JOIN users ON users.id = group_memberships.user_id").
			Where("group_memberships.role = ? AND users.is_active = ?", role, true)).
		Order("name ASC").
		Find(&result).Error
	return result, err
}

// SetQuota sets the limit of one attribute, keeping its current usage.
func (r *GroupRepository) SetQuota(ctx context.Context, groupID uuid.UUID, attr quota.Attribute, limit float64) error {
	if !attr.Valid() {
		return errdef.NewBadRequest("unknown quota attribute %q", attr)
	}
	row := models.Quota{GroupID: groupID, Attribute: attr.String(), Limit: limit}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "attribute"}},
		DoUpdates: clause.AssignmentColumns([]string{"quota_limit", "updated_at"}),
	}).Create(&row).Error
}

// AddUsage adds usage to the used amount of every quota row the group has.
func (r *GroupRepository) AddUsage(ctx context.Context, groupID uuid.UUID, usage quota.Usage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attr, amount := range usage {
			if amount == 0 {
				continue
			}
			err := tx.Model(&models.Quota{}).
				Where("group_id = ? AND attribute = ?", groupID, attr.String()).
				UpdateColumn("used", gorm.Expr("used + ?", amount)).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
