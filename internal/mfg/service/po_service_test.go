package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) createPO(t *testing.T, lines ...POLineItemInput) *entity.PurchaseOrder {
	t.Helper()
	po, err := e.svc.PO.Create(context.Background(), "buyer", &CreatePORequest{
		SupplierID:   "sup-1",
		SupplierName: "Hardwood Co",
		LineItems:    lines,
		LandedCosts:  &entity.LandedCosts{Shipping: 30, DistributionMethod: entity.DistributeByValue},
	})
	require.NoError(t, err)
	return po
}

func (e *testEnv) sentPO(t *testing.T, lines ...POLineItemInput) *entity.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po := e.createPO(t, lines...)
	_, err := e.svc.PO.Submit(ctx, po.ID, "buyer")
	require.NoError(t, err)
	_, err = e.svc.PO.Approve(ctx, po.ID, "finance", "ok")
	require.NoError(t, err)
	po, err = e.svc.PO.MarkAsSent(ctx, po.ID, "buyer")
	require.NoError(t, err)
	return po
}

func twoLines() []POLineItemInput {
	return []POLineItemInput{
		{ID: "line-a", InventoryItemID: "item-oak", Description: "Oak board", Quantity: 10, UnitCost: 20},
		{ID: "line-b", InventoryItemID: "item-walnut", Description: "Walnut board", Quantity: 5, UnitCost: 20},
	}
}

func TestPOCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	po := env.createPO(t, twoLines()...)
	require.Equal(t, "PO-2026-0001", po.PONumber)
	require.Equal(t, entity.POStatusDraft, po.Status)
	require.Equal(t, 300.0, po.Totals.Subtotal)
	require.Equal(t, 30.0, po.Totals.LandedCostTotal)
	require.Equal(t, 330.0, po.Totals.GrandTotal)
	require.Equal(t, "USD", po.Totals.Currency)
	require.Equal(t, 20.0, po.LineItems[0].LandedCostAllocation)
	require.Equal(t, 22.0, po.LineItems[0].EffectiveUnitCost)

	prefixed, err := env.svc.PO.Create(ctx, "buyer", &CreatePORequest{
		SupplierID: "sup-1", Prefix: "FUR", LineItems: twoLines(),
	})
	require.NoError(t, err)
	require.Equal(t, "PO-FUR-2026-0001", prefixed.PONumber)

	_, err = env.svc.PO.Create(ctx, "buyer", &CreatePORequest{SupplierID: "sup-1"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.PO.Create(ctx, "buyer", &CreatePORequest{
		SupplierID: "sup-1",
		LineItems:  twoLines(),
		LandedCosts: &entity.LandedCosts{
			Shipping: 10, DistributionMethod: "by_volume",
		},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPOUpdate_RecomputesAndLocksAfterApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po := env.createPO(t, twoLines()...)

	po, err := env.svc.PO.Update(ctx, po.ID, "buyer", &UpdatePORequest{
		LandedCosts: &entity.LandedCosts{Shipping: 10, Customs: 5, DistributionMethod: entity.DistributeEqual},
	})
	require.NoError(t, err)
	require.Equal(t, 15.0, po.Totals.LandedCostTotal)
	require.Equal(t, 7.5, po.LineItems[0].LandedCostAllocation)
	require.Equal(t, 7.5, po.LineItems[1].LandedCostAllocation)

	_, err = env.svc.PO.Submit(ctx, po.ID, "buyer")
	require.NoError(t, err)
	lines := twoLines()[:1]
	po, err = env.svc.PO.Update(ctx, po.ID, "buyer", &UpdatePORequest{LineItems: &lines})
	require.NoError(t, err)
	require.Len(t, po.LineItems, 1)
	require.Equal(t, 200.0, po.Totals.Subtotal)
	require.Equal(t, 15.0, po.LineItems[0].LandedCostAllocation)

	_, err = env.svc.PO.Approve(ctx, po.ID, "finance", "")
	require.NoError(t, err)
	_, err = env.svc.PO.Update(ctx, po.ID, "buyer", &UpdatePORequest{LineItems: &lines})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPOApproval_RejectLoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po := env.createPO(t, twoLines()...)

	_, err := env.svc.PO.Approve(ctx, po.ID, "finance", "")
	require.ErrorIs(t, err, ErrInvalidState)

	po, err = env.svc.PO.Submit(ctx, po.ID, "buyer")
	require.NoError(t, err)
	require.Equal(t, entity.POStatusPendingApproval, po.Status)
	require.Len(t, po.Approvals, 1)
	require.Equal(t, 1, po.Approvals[0].Level)

	po, err = env.svc.PO.Reject(ctx, po.ID, "finance", "price too high")
	require.NoError(t, err)
	require.Equal(t, entity.POStatusDraft, po.Status)
	require.Equal(t, entity.POApprovalRejected, po.Approvals[0].Status)
	require.Equal(t, "finance", po.Approvals[0].ApproverID)
	require.Equal(t, "price too high", po.Approvals[0].Notes)

	po, err = env.svc.PO.Submit(ctx, po.ID, "buyer")
	require.NoError(t, err)
	po, err = env.svc.PO.Approve(ctx, po.ID, "finance", "")
	require.NoError(t, err)
	require.Equal(t, entity.POStatusApproved, po.Status)
	require.Len(t, po.Approvals, 2)
	require.Equal(t, entity.POApprovalApproved, po.Approvals[1].Status)
}

func TestPOMarkAsSent_RequiresApproved(t *testing.T) {
	env := newTestEnv(t)
	po := env.createPO(t, twoLines()...)
	_, err := env.svc.PO.MarkAsSent(context.Background(), po.ID, "buyer")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPOReceiveGoods_Monotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("two receipts complete the order", func(t *testing.T) {
		po := env.sentPO(t, twoLines()...)
		res, err := env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{
			WarehouseID: testWarehouse,
			Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 5}, {LineItemID: "line-b", Quantity: 5}},
		})
		require.NoError(t, err)
		require.False(t, res.FullyReceived)
		require.Equal(t, entity.POStatusPartiallyReceived, res.PO.Status)

		res, err = env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{
			WarehouseID: testWarehouse,
			Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 5}, {LineItemID: "line-b", Quantity: 0}},
		})
		require.NoError(t, err)
		require.True(t, res.FullyReceived)
		require.Equal(t, entity.POStatusReceived, res.PO.Status)
		require.Equal(t, 10.0, res.PO.LineItems[0].QuantityReceived)
		require.Equal(t, 5.0, res.PO.LineItems[1].QuantityReceived)
		require.Len(t, res.PO.ReceivingHistory, 2)
		require.NotNil(t, res.PO.ReceivedAt)
	})

	t.Run("single partial receipt", func(t *testing.T) {
		po := env.sentPO(t, twoLines()...)
		res, err := env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{
			WarehouseID: testWarehouse,
			Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 5}, {LineItemID: "line-b", Quantity: 0}},
		})
		require.NoError(t, err)
		require.Equal(t, entity.POStatusPartiallyReceived, res.PO.Status)
	})
}

func TestPOReceiveGoods_InventoryAndCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po := env.sentPO(t, twoLines()...)

	_, err := env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{
		WarehouseID: testWarehouse,
		Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 10}},
	})
	require.NoError(t, err)

	onHand, _ := env.inv.Level("item-oak", testWarehouse)
	require.Equal(t, 10.0, onHand)
	// 到岸费用按金额分摊：200/300*30 = 20，有效单价 (200+20)/10
	require.Equal(t, 22.0, env.inv.AverageCost("item-oak"))
	require.Len(t, env.inv.Calls("receive"), 1)
	require.Equal(t, po.ID, env.inv.Calls("receive")[0].ReferenceID)
}

func TestPOReceiveGoods_InventoryFailureKeepsReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	po := env.sentPO(t, twoLines()...)
	env.inv.FailOn("receive", "item-walnut", errors.New("warehouse offline"))

	res, err := env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{
		WarehouseID: testWarehouse,
		Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 10}, {LineItemID: "line-b", Quantity: 5}},
	})
	require.NoError(t, err)
	require.True(t, res.FullyReceived)
	require.Len(t, res.InventoryFailures, 1)
	require.Contains(t, res.InventoryFailures[0], "item-walnut")
	require.Len(t, env.events.ofType("po.inventory_update_failed"), 1)

	stored, err := env.svc.PO.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, entity.POStatusReceived, stored.Status)
}

func TestPOReceiveGoods_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	draft := env.createPO(t, twoLines()...)
	_, err := env.svc.PO.ReceiveGoods(ctx, draft.ID, "dock", &ReceiveGoodsRequest{
		WarehouseID: testWarehouse,
		Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidState)

	po := env.sentPO(t, twoLines()...)
	cases := map[string][]entity.ReceivingLine{
		"over receipt":        {{LineItemID: "line-b", Quantity: 6}},
		"over receipt by sum": {{LineItemID: "line-b", Quantity: 3}, {LineItemID: "line-b", Quantity: 3}},
		"negative quantity":   {{LineItemID: "line-a", Quantity: -1}},
		"unknown line":        {{LineItemID: "line-z", Quantity: 1}},
		"nothing to receive":  {{LineItemID: "line-a", Quantity: 0}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{WarehouseID: testWarehouse, Lines: lines})
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	stored, err := env.svc.PO.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, entity.POStatusSent, stored.Status)
	require.Empty(t, stored.ReceivingHistory)
}

func TestPOCloseAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	po := env.sentPO(t, twoLines()...)
	_, err := env.svc.PO.Close(ctx, po.ID, "buyer")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = env.svc.PO.ReceiveGoods(ctx, po.ID, "dock", &ReceiveGoodsRequest{
		WarehouseID: testWarehouse,
		Lines:       []entity.ReceivingLine{{LineItemID: "line-a", Quantity: 2}},
	})
	require.NoError(t, err)
	closed, err := env.svc.PO.Close(ctx, po.ID, "buyer")
	require.NoError(t, err)
	require.Equal(t, entity.POStatusClosed, closed.Status)

	_, err = env.svc.PO.Cancel(ctx, po.ID, "buyer", "late")
	require.ErrorIs(t, err, ErrInvalidState)

	other := env.createPO(t, twoLines()...)
	cancelled, err := env.svc.PO.Cancel(ctx, other.ID, "buyer", "duplicate")
	require.NoError(t, err)
	require.Equal(t, entity.POStatusCancelled, cancelled.Status)
	require.Equal(t, "duplicate", cancelled.CancelReason)

	_, err = env.svc.PO.Cancel(ctx, other.ID, "buyer", "again")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestPOExport(t *testing.T) {
	env := newTestEnv(t)
	po := env.createPO(t, twoLines()...)

	f, name, err := env.svc.PO.ExportPO(context.Background(), po.ID)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, po.PONumber+".xlsx", name)

	v, err := f.GetCellValue("PO", "B1")
	require.NoError(t, err)
	require.Equal(t, po.PONumber, v)
	v, err = f.GetCellValue("PO", "C4")
	require.NoError(t, err)
	require.Equal(t, "Oak board", v)
}
