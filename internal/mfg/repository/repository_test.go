package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMO(id, number string) *entity.ManufacturingOrder {
	return &entity.ManufacturingOrder{
		ID:           id,
		MONumber:     number,
		Subsidiary:   "US",
		DesignItemID: "design-1",
		Quantity:     1,
		Status:       entity.MOStatusDraft,
		CurrentStage: entity.StageQueued,
		Priority:     entity.PriorityNormal,
		Version:      1,
	}
}

func newRequirement(id, moID, supplierID string) *entity.ProcurementRequirement {
	return &entity.ProcurementRequirement{
		ID:          id,
		MOID:        moID,
		Description: "oak board",
		Quantity:    5,
		SupplierID:  supplierID,
		Source:      "bom",
		Status:      entity.RequirementPending,
		Subsidiary:  "US",
		CreatedAt:   time.Now(),
	}
}

func TestMORepository_VersionedUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewMORepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newMO("mo-1", "MO-US-0001")))

	first, err := repo.FindByID(ctx, "mo-1")
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, "mo-1")
	require.NoError(t, err)

	first.Priority = entity.PriorityHigh
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	stale.Priority = entity.PriorityLow
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 1, stale.Version, "失败时版本号回退")

	got, err := repo.FindByID(ctx, "mo-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PriorityHigh, got.Priority)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := repo.CountByNumberPrefix(ctx, "US", "MO-US-")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRequirementRepository_MarkAddedToPO(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewRequirementRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRequirement("req-1", "mo-1", "sup-1")))
	require.NoError(t, repo.Create(ctx, newRequirement("req-2", "mo-1", "sup-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "req-2", entity.RequirementPending, entity.RequirementCancelled, "not needed"))

	t.Run("any non-pending rolls back the batch", func(t *testing.T) {
		err := repo.MarkAddedToPO(ctx, []repository.RequirementLink{
			{RequirementID: "req-1", POID: "po-1", POLineItemID: "line-1"},
			{RequirementID: "req-2", POID: "po-1", POLineItemID: "line-2"},
		})
		assert.ErrorIs(t, err, repository.ErrConflict)

		got, err := repo.FindByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, entity.RequirementPending, got.Status)
		assert.Empty(t, got.POID)
	})

	t.Run("pending requirements are linked", func(t *testing.T) {
		err := repo.MarkAddedToPO(ctx, []repository.RequirementLink{
			{RequirementID: "req-1", POID: "po-1", POLineItemID: "line-1"},
		})
		require.NoError(t, err)

		linked, err := repo.FindByPO(ctx, "po-1")
		require.NoError(t, err)
		require.Len(t, linked, 1)
		assert.Equal(t, entity.RequirementAddedToPO, linked[0].Status)
		assert.Equal(t, "line-1", linked[0].POLineItemID)

		pending, err := repo.FindPending(ctx, "sup-1")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestRequirementRepository_UpdateStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewRequirementRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRequirement("req-1", "mo-1", "")))

	err := repo.UpdateStatus(ctx, "missing", entity.RequirementPending, entity.RequirementCancelled, "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.UpdateStatus(ctx, "req-1", entity.RequirementAddedToPO, entity.RequirementOrdered, "")
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, repo.UpdateStatus(ctx, "req-1", entity.RequirementPending, entity.RequirementCancelled, "design changed"))
	got, err := repo.FindByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementCancelled, got.Status)
	assert.Equal(t, "design changed", got.CancelReason)
}

func TestSequence_WithoutRedis(t *testing.T) {
	seq := repository.NewSequence(nil)
	calls := 0
	seed := func(context.Context) (int64, error) {
		calls++
		return 41, nil
	}

	n, err := seq.Next(context.Background(), "MO-US-2026", seed)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	assert.Equal(t, 1, calls)
}
