package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/inventory"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository/memory"
	"github.com/stretchr/testify/require"
)

const testWarehouse = "wh-main"

// recordingSink 记录所有事件
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) ofType(t string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc    *Services
	inv    *inventory.Memory
	stores Stores
	events *recordingSink
	clock  *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith 允许在组装服务前替换存储
func newTestEnvWith(t *testing.T, wrap func(*Stores)) *testEnv {
	t.Helper()
	stores := Stores{
		MO:          memory.NewMORepository(),
		PO:          memory.NewPORepository(),
		Requirement: memory.NewRequirementRepository(),
		Approval:    memory.NewApprovalRepository(),
		Variance:    memory.NewVarianceRepository(),
		Labor:       memory.NewLaborRepository(),
		Supplier:    memory.NewSupplierRepository(),
		ActivityLog: memory.NewActivityLogRepository(),
		Sequence:    memory.NewSequence(),
	}
	if wrap != nil {
		wrap(&stores)
	}
	inv := inventory.NewMemory()
	events := &recordingSink{}
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	svc := NewServices(stores, inv, Options{
		Subsidiary: "US",
		Currency:   "USD",
		Events:     events,
		Now:        clock.Now,
	})
	return &testEnv{svc: svc, inv: inv, stores: stores, events: events, clock: clock}
}

// createMO 创建草稿MO
func (e *testEnv) createMO(t *testing.T, priority entity.Priority, bom ...BOMEntryInput) *entity.ManufacturingOrder {
	t.Helper()
	mo, err := e.svc.MO.Create(context.Background(), "planner", &CreateMORequest{
		DesignItemName: "Walnut Dining Table",
		Quantity:       1,
		Priority:       priority,
		BOM:            bom,
	})
	require.NoError(t, err)
	return mo
}

// stockedBOM 三个已备库存的BOM行
func (e *testEnv) stockedBOM() []BOMEntryInput {
	e.inv.SetStock("item-oak", testWarehouse, 100)
	e.inv.SetStock("item-screw", testWarehouse, 1000)
	e.inv.SetStock("item-stain", testWarehouse, 20)
	return []BOMEntryInput{
		{InventoryItemID: "item-oak", Name: "Oak board", RequiredQty: 10, UnitCost: 25},
		{InventoryItemID: "item-screw", Name: "Screw 4x40", RequiredQty: 200, UnitCost: 0.1},
		{InventoryItemID: "item-stain", Name: "Walnut stain", RequiredQty: 2, UnitCost: 15},
	}
}

// inProductionMO 已开工的MO
func (e *testEnv) inProductionMO(t *testing.T) *entity.ManufacturingOrder {
	t.Helper()
	ctx := context.Background()
	mo := e.createMO(t, entity.PriorityNormal, e.stockedBOM()...)
	res, err := e.svc.MO.Approve(ctx, mo.ID, testWarehouse, "manager")
	require.NoError(t, err)
	require.True(t, res.Success)
	mo, err = e.svc.MO.StartProduction(ctx, mo.ID, "lead")
	require.NoError(t, err)
	return mo
}

func (e *testEnv) createSupplier(t *testing.T, code, name string) *entity.Supplier {
	t.Helper()
	sup, err := e.svc.Supplier.Create(context.Background(), &CreateSupplierRequest{Code: code, Name: name, Currency: "USD"})
	require.NoError(t, err)
	return sup
}

// racingMOStore 在下一次 Update 前让另一个写入者抢先改动同一张MO
type racingMOStore struct {
	MOStore
	mu    sync.Mutex
	races int
}

func (r *racingMOStore) raceNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.races = n
}

func (r *racingMOStore) Update(ctx context.Context, mo *entity.ManufacturingOrder) error {
	r.mu.Lock()
	race := r.races > 0
	if race {
		r.races--
	}
	r.mu.Unlock()
	if race {
		other, err := r.MOStore.FindByID(ctx, mo.ID)
		if err != nil {
			return err
		}
		other.Notes = "edited elsewhere"
		if err := r.MOStore.Update(ctx, other); err != nil {
			return err
		}
	}
	return r.MOStore.Update(ctx, mo)
}

func newRacingEnv(t *testing.T) (*testEnv, *racingMOStore) {
	t.Helper()
	var racer *racingMOStore
	env := newTestEnvWith(t, func(st *Stores) {
		racer = &racingMOStore{MOStore: st.MO}
		st.MO = racer
	})
	return env, racer
}
