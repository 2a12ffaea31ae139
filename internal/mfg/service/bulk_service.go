package service

import (
	"context"
	"strconv"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"go.uber.org/zap"
)

// BulkItemResult 单个MO的处理结果
type BulkItemResult struct {
	ID      string      `json:"id"`
	Number  string      `json:"number,omitempty"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// BulkResult 批量操作结果，部分失败不是错误
type BulkResult struct {
	TotalProcessed int              `json:"total_processed"`
	SuccessCount   int              `json:"success_count"`
	FailureCount   int              `json:"failure_count"`
	Results        []BulkItemResult `json:"results"`
}

// BulkService 批量MO操作：按输入顺序逐个处理，单个失败不影响后续
type BulkService struct {
	mos    *MOService
	logger *zap.Logger
}

func NewBulkService(mos *MOService, logger *zap.Logger) *BulkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkService{mos: mos, logger: logger}
}

// itemOp 返回订单号、明细和错误
type itemOp func(ctx context.Context, id string) (number string, details interface{}, err error)

func (s *BulkService) run(ctx context.Context, op string, ids []string, fn itemOp) *BulkResult {
	out := &BulkResult{Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		r := BulkItemResult{ID: id}
		number, details, err := fn(ctx, id)
		r.Number = number
		r.Details = details
		if err != nil {
			r.Error = err.Error()
			out.FailureCount++
		} else {
			r.Success = true
			out.SuccessCount++
		}
		out.Results = append(out.Results, r)
		out.TotalProcessed++
	}
	s.logger.Info("bulk operation finished",
		zap.String("op", op),
		zap.Int("total", out.TotalProcessed),
		zap.Int("success", out.SuccessCount),
		zap.Int("failure", out.FailureCount))
	return out
}

// numberOf 失败时尽量解析出订单号
func (s *BulkService) numberOf(ctx context.Context, id string) string {
	mo, err := s.mos.Get(ctx, id)
	if err != nil {
		return ""
	}
	return mo.MONumber
}

type bulkShortageError struct {
	count int
}

func (e bulkShortageError) Error() string {
	if e.count == 1 {
		return "1 material shortage"
	}
	return strconv.Itoa(e.count) + " material shortages"
}

// BulkApprove 批量审批；有缺料的记为失败并在明细中给出缺料清单
func (s *BulkService) BulkApprove(ctx context.Context, ids []string, warehouseID, userID string) *BulkResult {
	return s.run(ctx, "approve", ids, func(ctx context.Context, id string) (string, interface{}, error) {
		res, err := s.mos.Approve(ctx, id, warehouseID, userID)
		if err != nil {
			return s.numberOf(ctx, id), nil, err
		}
		details := map[string]interface{}{
			"reservations": len(res.Reservations),
			"shortages":    res.Shortages,
		}
		if !res.Success {
			return res.MO.MONumber, details, bulkShortageError{count: len(res.Shortages)}
		}
		return res.MO.MONumber, details, nil
	})
}

// BulkAdvanceStage 批量推进工序
func (s *BulkService) BulkAdvanceStage(ctx context.Context, ids []string, userID, notes string) *BulkResult {
	return s.run(ctx, "advance_stage", ids, func(ctx context.Context, id string) (string, interface{}, error) {
		mo, err := s.mos.AdvanceStage(ctx, id, userID, notes)
		if err != nil {
			return s.numberOf(ctx, id), nil, err
		}
		return mo.MONumber, map[string]interface{}{"stage": mo.CurrentStage, "status": mo.Status}, nil
	})
}

// BulkHold 批量暂停
func (s *BulkService) BulkHold(ctx context.Context, ids []string, userID, reason string) *BulkResult {
	return s.run(ctx, "hold", ids, func(ctx context.Context, id string) (string, interface{}, error) {
		mo, err := s.mos.Hold(ctx, id, userID, reason)
		if err != nil {
			return s.numberOf(ctx, id), nil, err
		}
		return mo.MONumber, nil, nil
	})
}

// BulkResume 批量恢复
func (s *BulkService) BulkResume(ctx context.Context, ids []string, userID string) *BulkResult {
	return s.run(ctx, "resume", ids, func(ctx context.Context, id string) (string, interface{}, error) {
		mo, err := s.mos.Resume(ctx, id, userID)
		if err != nil {
			return s.numberOf(ctx, id), nil, err
		}
		return mo.MONumber, nil, nil
	})
}

// BulkCancel 批量取消；预留释放失败只体现在明细中，取消本身仍算成功
func (s *BulkService) BulkCancel(ctx context.Context, ids []string, userID, reason string) *BulkResult {
	return s.run(ctx, "cancel", ids, func(ctx context.Context, id string) (string, interface{}, error) {
		res, err := s.mos.Cancel(ctx, id, userID, reason)
		if err != nil {
			return s.numberOf(ctx, id), nil, err
		}
		return res.MO.MONumber, map[string]interface{}{
			"released":         res.Released,
			"release_failures": res.ReleaseFailures,
		}, nil
	})
}

// BulkReprioritize 批量调整优先级
func (s *BulkService) BulkReprioritize(ctx context.Context, ids []string, userID string, priority entity.Priority) *BulkResult {
	return s.run(ctx, "reprioritize", ids, func(ctx context.Context, id string) (string, interface{}, error) {
		mo, err := s.mos.Reprioritize(ctx, id, userID, priority)
		if err != nil {
			return s.numberOf(ctx, id), nil, err
		}
		return mo.MONumber, map[string]interface{}{"priority": mo.Priority}, nil
	})
}
