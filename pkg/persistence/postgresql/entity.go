package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// EntityRepository handles the CRM records, tasks and notifications automations touch.
type EntityRepository struct {
	store
}

func (r *EntityRepository) GetEntity(ctx context.Context, tenantID string, ref models.EntityRef) (*models.Entity, error) {
	entity, found, err := getDocument[models.Entity](ctx, r.store,
		"SELECT data FROM crm_entities WHERE tenant_id = $1 AND entity_type = $2 AND id = $3",
		tenantID, ref.Type, ref.ID)
	if err != nil {
		return nil, persistence.NewRecordError("GetEntity", ref.Type, tenantID, ref.ID, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetEntity", ref.Type, tenantID, ref.ID, persistence.ErrEntityNotFound)
	}

	return entity, nil
}

func (r *EntityRepository) SaveEntity(ctx context.Context, entity *models.Entity) error {
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return persistence.NewRecordError("SaveEntity", entity.Type, entity.TenantID, entity.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO crm_entities (tenant_id, entity_type, id, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, entity_type, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, entity.TenantID, entity.Type, entity.ID, data, entity.UpdatedAt)
	if err != nil {
		return persistence.NewRecordError("SaveEntity", entity.Type, entity.TenantID, entity.ID, err)
	}

	return nil
}

func (r *EntityRepository) ListEntities(ctx context.Context, tenantID, entityType string) ([]*models.Entity, error) {
	return queryDocuments[models.Entity](ctx, r.store,
		"SELECT data FROM crm_entities WHERE tenant_id = $1 AND entity_type = $2 ORDER BY id",
		tenantID, entityType)
}

func (r *EntityRepository) CreateTask(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO crm_tasks (tenant_id, id, entity_type, entity_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, task.TenantID, task.ID, task.EntityType, task.EntityID, data, task.CreatedAt)
	if err != nil {
		return persistence.NewRecordError("CreateTask", "task", task.TenantID, task.ID, err)
	}

	return nil
}

func (r *EntityRepository) ListTasks(ctx context.Context, tenantID string, ref models.EntityRef) ([]*models.Task, error) {
	return queryDocuments[models.Task](ctx, r.store,
		"SELECT data FROM crm_tasks WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 ORDER BY created_at",
		tenantID, ref.Type, ref.ID)
}

func (r *EntityRepository) SaveNotification(ctx context.Context, notification *models.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (tenant_id, id, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, id) DO UPDATE SET data = EXCLUDED.data
	`, notification.TenantID, notification.ID, data, notification.CreatedAt)
	if err != nil {
		return persistence.NewRecordError("SaveNotification", "notification", notification.TenantID, notification.ID, err)
	}

	return nil
}

func (r *EntityRepository) ListNotifications(ctx context.Context, tenantID string) ([]*models.Notification, error) {
	return queryDocuments[models.Notification](ctx, r.store,
		"SELECT data FROM notifications WHERE tenant_id = $1 ORDER BY created_at", tenantID)
}
