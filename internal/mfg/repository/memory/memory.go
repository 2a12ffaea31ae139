// Package memory 内存版仓库，实现与 gorm 仓库相同的契约（含版本冲突检测），用于测试与本地运行。
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
)

// clone 深拷贝，避免调用方与存储共享切片
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// MORepository 内存生产订单仓库
type MORepository struct {
	mu    sync.RWMutex
	items map[string]*entity.ManufacturingOrder
	order []string
}

func NewMORepository() *MORepository {
	return &MORepository{items: make(map[string]*entity.ManufacturingOrder)}
}

func (r *MORepository) Create(_ context.Context, mo *entity.ManufacturingOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mo.Version == 0 {
		mo.Version = 1
	}
	now := time.Now()
	mo.CreatedAt, mo.UpdatedAt = now, now
	r.items[mo.ID] = clone(mo)
	r.order = append(r.order, mo.ID)
	return nil
}

func (r *MORepository) FindByID(_ context.Context, id string) (*entity.ManufacturingOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mo, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(mo), nil
}

func (r *MORepository) FindAll(_ context.Context, page, pageSize int, filters map[string]string) ([]entity.ManufacturingOrder, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.ManufacturingOrder
	for i := len(r.order) - 1; i >= 0; i-- {
		mo := r.items[r.order[i]]
		if v := filters["status"]; v != "" && string(mo.Status) != v {
			continue
		}
		if v := filters["stage"]; v != "" && string(mo.CurrentStage) != v {
			continue
		}
		if v := filters["priority"]; v != "" && string(mo.Priority) != v {
			continue
		}
		if v := filters["subsidiary"]; v != "" && mo.Subsidiary != v {
			continue
		}
		if v := filters["search"]; v != "" && !containsFold(mo.MONumber, v) && !containsFold(mo.DesignItemName, v) {
			continue
		}
		out = append(out, *clone(mo))
	}
	return paginate(out, page, pageSize), int64(len(out)), nil
}

func (r *MORepository) Update(_ context.Context, mo *entity.ManufacturingOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[mo.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != mo.Version {
		return repository.ErrConflict
	}
	mo.Version++
	mo.UpdatedAt = time.Now()
	r.items[mo.ID] = clone(mo)
	return nil
}

func (r *MORepository) CountByNumberPrefix(_ context.Context, subsidiary, prefix string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, mo := range r.items {
		if mo.Subsidiary == subsidiary && strings.HasPrefix(mo.MONumber, prefix) {
			n++
		}
	}
	return n, nil
}

// PORepository 内存采购订单仓库
type PORepository struct {
	mu    sync.RWMutex
	items map[string]*entity.PurchaseOrder
	order []string
}

func NewPORepository() *PORepository {
	return &PORepository{items: make(map[string]*entity.PurchaseOrder)}
}

func (r *PORepository) Create(_ context.Context, po *entity.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if po.Version == 0 {
		po.Version = 1
	}
	now := time.Now()
	po.CreatedAt, po.UpdatedAt = now, now
	r.items[po.ID] = clone(po)
	r.order = append(r.order, po.ID)
	return nil
}

func (r *PORepository) FindByID(_ context.Context, id string) (*entity.PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	po, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(po), nil
}

func (r *PORepository) FindAll(_ context.Context, page, pageSize int, filters map[string]string) ([]entity.PurchaseOrder, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.PurchaseOrder
	for i := len(r.order) - 1; i >= 0; i-- {
		po := r.items[r.order[i]]
		if v := filters["status"]; v != "" && string(po.Status) != v {
			continue
		}
		if v := filters["supplier_id"]; v != "" && po.SupplierID != v {
			continue
		}
		if v := filters["search"]; v != "" && !containsFold(po.PONumber, v) && !containsFold(po.SupplierName, v) {
			continue
		}
		out = append(out, *clone(po))
	}
	return paginate(out, page, pageSize), int64(len(out)), nil
}

func (r *PORepository) Update(_ context.Context, po *entity.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[po.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != po.Version {
		return repository.ErrConflict
	}
	po.Version++
	po.UpdatedAt = time.Now()
	r.items[po.ID] = clone(po)
	return nil
}

func (r *PORepository) CountByNumberPrefix(_ context.Context, subsidiary, prefix string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, po := range r.items {
		if po.Subsidiary == subsidiary && strings.HasPrefix(po.PONumber, prefix) {
			n++
		}
	}
	return n, nil
}

// RequirementRepository 内存采购需求仓库
type RequirementRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.ProcurementRequirement
	order []string
}

func NewRequirementRepository() *RequirementRepository {
	return &RequirementRepository{items: make(map[string]*entity.ProcurementRequirement)}
}

func (r *RequirementRepository) Create(_ context.Context, req *entity.ProcurementRequirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	r.items[req.ID] = clone(req)
	r.order = append(r.order, req.ID)
	return nil
}

func (r *RequirementRepository) FindByID(_ context.Context, id string) (*entity.ProcurementRequirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(req), nil
}

func (r *RequirementRepository) filter(keep func(*entity.ProcurementRequirement) bool) []entity.ProcurementRequirement {
	var out []entity.ProcurementRequirement
	for _, id := range r.order {
		if req := r.items[id]; keep(req) {
			out = append(out, *clone(req))
		}
	}
	return out
}

func (r *RequirementRepository) FindByIDs(_ context.Context, ids []string) ([]entity.ProcurementRequirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(req *entity.ProcurementRequirement) bool { return want[req.ID] }), nil
}

func (r *RequirementRepository) FindByMO(_ context.Context, moID string) ([]entity.ProcurementRequirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(req *entity.ProcurementRequirement) bool { return req.MOID == moID }), nil
}

func (r *RequirementRepository) FindByPO(_ context.Context, poID string) ([]entity.ProcurementRequirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(req *entity.ProcurementRequirement) bool { return req.POID == poID }), nil
}

func (r *RequirementRepository) FindPending(_ context.Context, supplierID string) ([]entity.ProcurementRequirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(req *entity.ProcurementRequirement) bool {
		return req.Status == entity.RequirementPending && (supplierID == "" || req.SupplierID == supplierID)
	}), nil
}

// MarkAddedToPO 先整体校验再写入，保证全有或全无
func (r *RequirementRepository) MarkAddedToPO(_ context.Context, links []repository.RequirementLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range links {
		req, ok := r.items[l.RequirementID]
		if !ok || req.Status != entity.RequirementPending {
			return repository.ErrConflict
		}
	}
	now := time.Now()
	for _, l := range links {
		req := r.items[l.RequirementID]
		req.Status = entity.RequirementAddedToPO
		req.POID = l.POID
		req.POLineItemID = l.POLineItemID
		req.UpdatedAt = now
	}
	return nil
}

func (r *RequirementRepository) UpdateStatus(_ context.Context, id string, from, to entity.RequirementStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.Status != from {
		return repository.ErrConflict
	}
	req.Status = to
	if to == entity.RequirementCancelled {
		req.CancelReason = reason
	}
	req.UpdatedAt = time.Now()
	return nil
}

// ApprovalRepository 内存审批单仓库
type ApprovalRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.ApprovalRequest
	order []string
}

func NewApprovalRepository() *ApprovalRepository {
	return &ApprovalRepository{items: make(map[string]*entity.ApprovalRequest)}
}

func (r *ApprovalRepository) Create(_ context.Context, req *entity.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Version == 0 {
		req.Version = 1
	}
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	r.items[req.ID] = clone(req)
	r.order = append(r.order, req.ID)
	return nil
}

func (r *ApprovalRepository) FindByID(_ context.Context, id string) (*entity.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(req), nil
}

func (r *ApprovalRepository) FindOpenByMO(_ context.Context, moID string) (*entity.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		req := r.items[r.order[i]]
		if req.MOID == moID && req.Status.IsOpen() {
			return clone(req), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ApprovalRepository) FindOpen(_ context.Context) ([]entity.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.ApprovalRequest
	for _, id := range r.order {
		if req := r.items[id]; req.Status.IsOpen() {
			out = append(out, *clone(req))
		}
	}
	return out, nil
}

func (r *ApprovalRepository) Update(_ context.Context, req *entity.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != req.Version {
		return repository.ErrConflict
	}
	req.Version++
	req.UpdatedAt = time.Now()
	r.items[req.ID] = clone(req)
	return nil
}

// VarianceRepository 内存成本差异仓库
type VarianceRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.CostVarianceRecord
}

func NewVarianceRepository() *VarianceRepository {
	return &VarianceRepository{items: make(map[string]*entity.CostVarianceRecord)}
}

func (r *VarianceRepository) Upsert(_ context.Context, rec *entity.CostVarianceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.items[rec.MOID]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()
	r.items[rec.MOID] = clone(rec)
	return nil
}

func (r *VarianceRepository) FindByMO(_ context.Context, moID string) (*entity.CostVarianceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[moID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(rec), nil
}

// LaborRepository 内存工时仓库
type LaborRepository struct {
	mu    sync.RWMutex
	items []entity.LaborEntry
}

func NewLaborRepository() *LaborRepository {
	return &LaborRepository{}
}

func (r *LaborRepository) Create(_ context.Context, e *entity.LaborEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.CreatedAt = time.Now()
	r.items = append(r.items, *e)
	return nil
}

func (r *LaborRepository) FindByMO(_ context.Context, moID string) ([]entity.LaborEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.LaborEntry
	for _, e := range r.items {
		if e.MOID == moID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// SupplierRepository 内存供应商仓库
type SupplierRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.Supplier
}

func NewSupplierRepository() *SupplierRepository {
	return &SupplierRepository{items: make(map[string]*entity.Supplier)}
}

func (r *SupplierRepository) Create(_ context.Context, s *entity.Supplier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	r.items[s.ID] = clone(s)
	return nil
}

func (r *SupplierRepository) FindByID(_ context.Context, id string) (*entity.Supplier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (r *SupplierRepository) SearchActive(_ context.Context, term, subsidiary string) ([]entity.Supplier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.Supplier
	for _, s := range r.items {
		if !s.IsActive() {
			continue
		}
		if subsidiary != "" && s.Subsidiary != "" && s.Subsidiary != subsidiary {
			continue
		}
		if term != "" && !containsFold(s.Name, term) && !containsFold(s.Code, term) {
			continue
		}
		out = append(out, *clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ActivityLogRepository 内存事件日志
type ActivityLogRepository struct {
	mu    sync.RWMutex
	items []entity.ActivityLog
}

func NewActivityLogRepository() *ActivityLogRepository {
	return &ActivityLogRepository{}
}

func (r *ActivityLogRepository) Create(_ context.Context, log *entity.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.CreatedAt = time.Now()
	r.items = append(r.items, *clone(log))
	return nil
}

func (r *ActivityLogRepository) FindByEntity(_ context.Context, entityType, entityID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.ActivityLog
	for i := len(r.items) - 1; i >= 0; i-- {
		if l := r.items[i]; l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return paginate(out, page, pageSize), int64(len(out)), nil
}

// All 全部事件，按写入顺序
func (r *ActivityLogRepository) All() []entity.ActivityLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]entity.ActivityLog(nil), r.items...)
}

// Sequence 内存单号流水
type Sequence struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewSequence() *Sequence {
	return &Sequence{next: make(map[string]int64)}
}

func (s *Sequence) Next(ctx context.Context, key string, seed func(context.Context) (int64, error)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.next[key]; !ok {
		n, err := seed(ctx)
		if err != nil {
			return 0, err
		}
		s.next[key] = n
	}
	s.next[key]++
	return s.next[key], nil
}
