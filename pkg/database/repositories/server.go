package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mhrivnak/orderflow/pkg/database/models"
)

type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// Transaction runs fn with a repository bound to a single database transaction.
func (r *ServerRepository) Transaction(ctx context.Context, fn func(repo *ServerRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewServerRepository(tx))
	})
}

func (r *ServerRepository) CreateHandler(ctx context.Context, handler *models.ResourceHandler) error {
	if handler == nil {
		return errors.New("resource handler cannot be nil")
	}
	return r.db.WithContext(ctx).Create(handler).Error
}

func (r *ServerRepository) GetHandler(ctx context.Context, id uuid.UUID) (*models.ResourceHandler, error) {
	var handler models.ResourceHandler
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&handler).Error; err != nil {
		return nil, notFound(err, "resource handler %s", id)
	}
	return &handler, nil
}

func (r *ServerRepository) ListHandlers(ctx context.Context) ([]models.ResourceHandler, error) {
	var handlers []models.ResourceHandler
	err := r.db.WithContext(ctx).Order("name ASC").Find(&handlers).Error
	return handlers, err
}

func (r *ServerRepository) TouchHandler(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ResourceHandler{}).Where("id = ?", id).Update("last_sync_at", at).Error
}

// ListByHandler returns every server of the handler, historical ones included.
func (r *ServerRepository) ListByHandler(ctx context.Context, handlerID uuid.UUID) ([]models.Server, error) {
	var servers []models.Server
	err := r.db.WithContext(ctx).
		Preload("CustomFieldValues").
		Where("resource_handler_id = ?", handlerID).
		Order("identifier ASC").
		Find(&servers).Error
	return servers, err
}

func (r *ServerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).Preload("CustomFieldValues").Where("id = ?", id).First(&server).Error; err != nil {
		return nil, notFound(err, "server %s", id)
	}
	return &server, nil
}

func (r *ServerRepository) Create(ctx context.Context, server *models.Server) error {
	if server == nil {
		return errors.New("server cannot be nil")
	}
	return r.db.WithContext(ctx).Create(server).Error
}

// Save updates the server columns and replaces its custom field values: values are upserted
// and fields no longer present are removed.
func (r *ServerRepository) Save(ctx context.Context, server *models.Server) error {
	if server == nil {
		return errors.New("server cannot be nil")
	}
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Save(server).Error; err != nil {
		return err
	}
	names := make([]string, 0, len(server.CustomFieldValues))
	for _, value := range server.CustomFieldValues {
		row := models.CustomFieldValue{ServerID: server.ID, Name: value.Name, Value: value.Value}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		names = append(names, value.Name)
	}

	stale := db.Where("server_id = ?", server.ID)
	if len(names) > 0 {
		stale = stale.Where("name NOT IN ?", names)
	}
	return stale.Delete(&models.CustomFieldValue{}).Error
}

// MarkHistorical sets the status of the servers to HISTORICAL. Servers are never deleted.
func (r *ServerRepository) MarkHistorical(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Server{}).
		Where("id IN ?", ids).
		Update("status", models.ServerHistorical).Error
}
