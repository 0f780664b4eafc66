package file

import (
	"context"
	"sort"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// EntityRepository stores CRM records under entities/<tenant>/<type>/<id>.json, tasks under
// tasks/<tenant>/<id>.json and notifications under notifications/<tenant>/<id>.json.
type EntityRepository struct {
	p *Persistence
}

func (er *EntityRepository) GetEntity(_ context.Context, tenantID string, ref models.EntityRef) (*models.Entity, error) {
	path, err := er.p.path("entities", tenantID, ref.Type, ref.ID+".json")
	if err != nil {
		return nil, persistence.NewRecordError("GetEntity", "entity", tenantID, ref.String(), persistence.ErrEntityNotFound)
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	var entity models.Entity

	found, err := readJSON(path, &entity)
	if err != nil {
		return nil, persistence.NewRecordError("GetEntity", "entity", tenantID, ref.String(), err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetEntity", "entity", tenantID, ref.String(), persistence.ErrEntityNotFound)
	}

	return &entity, nil
}

func (er *EntityRepository) SaveEntity(_ context.Context, entity *models.Entity) error {
	path, err := er.p.path("entities", entity.TenantID, entity.Type, entity.ID+".json")
	if err != nil {
		return persistence.NewRecordError("SaveEntity", "entity", entity.TenantID, entity.ID, err)
	}

	er.p.mu.Lock()
	defer er.p.mu.Unlock()

	return writeJSON(path, entity)
}

func (er *EntityRepository) ListEntities(_ context.Context, tenantID, entityType string) ([]*models.Entity, error) {
	dir, err := er.p.path("entities", tenantID, entityType)
	if err != nil {
		return nil, err
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	entities, err := listJSON[models.Entity](dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	return entities, nil
}

func (er *EntityRepository) CreateTask(_ context.Context, task *models.Task) error {
	path, err := er.p.path("tasks", task.TenantID, task.ID+".json")
	if err != nil {
		return persistence.NewRecordError("CreateTask", "task", task.TenantID, task.ID, err)
	}

	er.p.mu.Lock()
	defer er.p.mu.Unlock()

	return writeJSON(path, task)
}

func (er *EntityRepository) ListTasks(_ context.Context, tenantID string, ref models.EntityRef) ([]*models.Task, error) {
	dir, err := er.p.path("tasks", tenantID)
	if err != nil {
		return nil, err
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	tasks, err := listJSON[models.Task](dir)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Task, 0, len(tasks))

	for _, task := range tasks {
		if task.EntityType == ref.Type && task.EntityID == ref.ID {
			filtered = append(filtered, task)
		}
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.Before(filtered[j].CreatedAt) })

	return filtered, nil
}

func (er *EntityRepository) SaveNotification(_ context.Context, notification *models.Notification) error {
	path, err := er.p.path("notifications", notification.TenantID, notification.ID+".json")
	if err != nil {
		return persistence.NewRecordError("SaveNotification", "notification", notification.TenantID, notification.ID, err)
	}

	er.p.mu.Lock()
	defer er.p.mu.Unlock()

	return writeJSON(path, notification)
}

func (er *EntityRepository) ListNotifications(_ context.Context, tenantID string) ([]*models.Notification, error) {
	dir, err := er.p.path("notifications", tenantID)
	if err != nil {
		return nil, err
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	notifications, err := listJSON[models.Notification](dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(notifications, func(i, j int) bool { return notifications[i].CreatedAt.Before(notifications[j].CreatedAt) })

	return notifications, nil
}

var _ persistence.Persistence = (*Persistence)(nil)
