package service

import (
	"context"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
)

// ActivityService 业务事件日志查询
type ActivityService struct {
	logs ActivityLogStore
}

func NewActivityService(logs ActivityLogStore) *ActivityService {
	return &ActivityService{logs: logs}
}

func (s *ActivityService) ListByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.logs.FindByEntity(ctx, entityType, entityID, page, pageSize)
}
