package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event 业务事件
type Event struct {
	Type       string
	EntityType string
	EntityID   string
	EntityCode string
	UserID     string
	Severity   string
	FromStatus string
	ToStatus   string
	Message    string
	Metadata   map[string]interface{}
}

// EventSink 只追加的业务事件出口；失败不影响主流程
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// AlertSender 高优先级告警推送（飞书卡片等）
type AlertSender interface {
	SendAlert(ctx context.Context, title string, lines []string) error
}

// ActivityLogSink 写入事件日志，高严重级别同时推送告警
type ActivityLogSink struct {
	store  ActivityLogStore
	alerts AlertSender
	logger *zap.Logger
}

func NewActivityLogSink(store ActivityLogStore, alerts AlertSender, logger *zap.Logger) *ActivityLogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityLogSink{store: store, alerts: alerts, logger: logger}
}

func (s *ActivityLogSink) Emit(ctx context.Context, ev Event) error {
	if ev.Severity == "" {
		ev.Severity = entity.SeverityInfo
	}
	log := &entity.ActivityLog{
		ID:         uuid.New().String()[:32],
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		EntityCode: ev.EntityCode,
		Action:     ev.Type,
		Severity:   ev.Severity,
		FromStatus: ev.FromStatus,
		ToStatus:   ev.ToStatus,
		Content:    ev.Message,
		Metadata:   ev.Metadata,
		OperatorID: ev.UserID,
	}
	err := s.store.Create(ctx, log)

	if ev.Severity == entity.SeverityHigh && s.alerts != nil {
		go func() {
			alertCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			lines := []string{
				fmt.Sprintf("单号: %s", ev.EntityCode),
				fmt.Sprintf("事件: %s", ev.Type),
			}
			if ev.Message != "" {
				lines = append(lines, ev.Message)
			}
			if sendErr := s.alerts.SendAlert(alertCtx, ev.Type, lines); sendErr != nil {
				s.logger.Warn("send alert failed", zap.String("event", ev.Type), zap.String("entity_id", ev.EntityID), zap.Error(sendErr))
			}
		}()
	}
	return err
}

// emitter 服务内嵌的事件发送辅助，失败只记日志
type emitter struct {
	sink   EventSink
	logger *zap.Logger
}

func (e emitter) emit(ctx context.Context, ev Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(ctx, ev); err != nil {
		e.logger.Warn("emit event failed",
			zap.String("event", ev.Type),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err))
	}
}
