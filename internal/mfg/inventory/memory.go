package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memKey struct {
	item      string
	warehouse string
}

type memLevel struct {
	onHand   float64
	reserved float64
}

// Call 记录一次适配器调用
type Call struct {
	Op          string
	ItemID      string
	WarehouseID string
	Quantity    float64
	ReferenceID string
}

// Memory 内存库存，可注入失败，用于测试和本地运行
type Memory struct {
	mu     sync.Mutex
	levels map[memKey]*memLevel
	costs  map[string][2]float64
	calls  []Call
	fail   map[string]map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		levels: make(map[memKey]*memLevel),
		costs:  make(map[string][2]float64),
		fail:   make(map[string]map[string]error),
	}
}

// SetStock 设置在库数量
func (m *Memory) SetStock(itemID, warehouseID string, onHand float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lvl := m.level(itemID, warehouseID)
	lvl.onHand = onHand
}

// FailOn 让某个操作对指定物料返回错误
func (m *Memory) FailOn(op, itemID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[op] == nil {
		m.fail[op] = make(map[string]error)
	}
	m.fail[op][itemID] = err
}

// Calls 按顺序返回所有调用
func (m *Memory) Calls(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Level 当前在库与预留
func (m *Memory) Level(itemID, warehouseID string) (onHand, reserved float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lvl, ok := m.levels[memKey{itemID, warehouseID}]
	if !ok {
		return 0, 0
	}
	return lvl.onHand, lvl.reserved
}

// AverageCost 当前加权平均成本
func (m *Memory) AverageCost(itemID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.costs[itemID][1]
}

func (m *Memory) level(itemID, warehouseID string) *memLevel {
	k := memKey{itemID, warehouseID}
	lvl, ok := m.levels[k]
	if !ok {
		lvl = &memLevel{}
		m.levels[k] = lvl
	}
	return lvl
}

func (m *Memory) record(op, itemID, warehouseID string, qty float64, ref string) error {
	m.calls = append(m.calls, Call{Op: op, ItemID: itemID, WarehouseID: warehouseID, Quantity: qty, ReferenceID: ref})
	if err, ok := m.fail[op][itemID]; ok {
		return err
	}
	return nil
}

func (m *Memory) Reserve(_ context.Context, req ReserveRequest) (*ReserveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("reserve", req.ItemID, req.WarehouseID, req.Quantity, req.ReferenceID); err != nil {
		return nil, err
	}
	lvl := m.level(req.ItemID, req.WarehouseID)
	available := lvl.onHand - lvl.reserved
	if available < req.Quantity {
		return &ReserveResult{Success: false, AvailableQty: available}, nil
	}
	lvl.reserved += req.Quantity
	return &ReserveResult{
		Success:      true,
		StockLevelID: req.ItemID + "@" + req.WarehouseID,
		AvailableQty: available - req.Quantity,
	}, nil
}

func (m *Memory) Consume(_ context.Context, req MovementRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("consume", req.ItemID, req.WarehouseID, req.Quantity, req.ReferenceID); err != nil {
		return err
	}
	lvl := m.level(req.ItemID, req.WarehouseID)
	if lvl.onHand < req.Quantity {
		return fmt.Errorf("%w: %s@%s", ErrInsufficientStock, req.ItemID, req.WarehouseID)
	}
	lvl.onHand -= req.Quantity
	lvl.reserved -= min(req.Quantity, lvl.reserved)
	return nil
}

func (m *Memory) Release(_ context.Context, req MovementRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("release", req.ItemID, req.WarehouseID, req.Quantity, req.ReferenceID); err != nil {
		return err
	}
	lvl := m.level(req.ItemID, req.WarehouseID)
	lvl.reserved -= min(req.Quantity, lvl.reserved)
	return nil
}

func (m *Memory) AggregatedStock(_ context.Context, itemID string) (*AggregatedStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]memKey, 0, len(m.levels))
	for k := range m.levels {
		if k.item == itemID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].warehouse < keys[j].warehouse })
	var agg AggregatedStock
	for _, k := range keys {
		agg.TotalOnHand += m.levels[k].onHand
		agg.TotalReserved += m.levels[k].reserved
	}
	agg.TotalAvailable = agg.TotalOnHand - agg.TotalReserved
	return &agg, nil
}

func (m *Memory) ReceiveStock(_ context.Context, req ReceiveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("receive", req.ItemID, req.WarehouseID, req.Quantity, req.POID); err != nil {
		return err
	}
	m.level(req.ItemID, req.WarehouseID).onHand += req.Quantity
	return nil
}

func (m *Memory) UpdateWeightedAverageCost(_ context.Context, itemID string, quantity, unitCost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("cost", itemID, "", quantity, ""); err != nil {
		return err
	}
	c := m.costs[itemID]
	m.costs[itemID] = [2]float64{c[0] + quantity, WeightedAverage(c[0], c[1], quantity, unitCost)}
	return nil
}
