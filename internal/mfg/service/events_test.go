package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/bitfantasy/nimo-mfg/internal/mfg/repository/memory"
	"github.com/stretchr/testify/require"
)

type alert struct {
	title string
	lines []string
}

type chanAlerts chan alert

func (c chanAlerts) SendAlert(_ context.Context, title string, lines []string) error {
	c <- alert{title: title, lines: lines}
	return nil
}

func TestActivityLogSink(t *testing.T) {
	store := memory.NewActivityLogRepository()
	alerts := make(chanAlerts, 4)
	sink := NewActivityLogSink(store, alerts, nil)
	ctx := context.Background()

	require.NoError(t, sink.Emit(ctx, Event{
		Type: "mo.approved", EntityType: "mo", EntityID: "mo-1", EntityCode: "MO-2026-0001",
		UserID: "u-1", FromStatus: "draft", ToStatus: "approved",
	}))
	require.NoError(t, sink.Emit(ctx, Event{
		Type: "mo.qc_failed", EntityType: "mo", EntityID: "mo-1", EntityCode: "MO-2026-0001",
		Severity: entity.SeverityHigh, Message: "2 defects",
	}))

	logs, total, err := store.FindByEntity(ctx, "mo", "mo-1", 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	severities := map[string]string{}
	for _, l := range logs {
		severities[l.Action] = l.Severity
	}
	require.Equal(t, entity.SeverityInfo, severities["mo.approved"])
	require.Equal(t, entity.SeverityHigh, severities["mo.qc_failed"])

	select {
	case a := <-alerts:
		require.Equal(t, "mo.qc_failed", a.title)
		require.Contains(t, a.lines, "2 defects")
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert for the high severity event")
	}
	require.Empty(t, alerts)
}
