package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"github.com/stretchr/testify/require"
)

const bandsYAML = `
thresholds:
  - name: elevated
    min_amount: 10000
    max_amount: 50000
    levels:
      - {level: 1, name: Production Manager, required_role: production_manager, sla_hours: 24, skippable: true, skip_priorities: [urgent]}
      - {level: 2, name: Operations Director, required_role: operations_director, sla_hours: 48}
  - name: standard
    min_amount: 0
    max_amount: 10000
    levels:
      - {level: 1, required_role: production_manager, sla_hours: 24}
  - name: major
    min_amount: 50000
    max_amount: null
    levels:
      - {level: 1, required_role: finance_director, sla_hours: 72}
`

func TestParseApprovalThresholds(t *testing.T) {
	bands, err := ParseApprovalThresholds([]byte(bandsYAML))
	require.NoError(t, err)
	require.Len(t, bands, 3)
	require.Equal(t, "standard", bands[0].Name)
	require.Equal(t, "elevated", bands[1].Name)
	require.Nil(t, bands[2].MaxAmount)

	lvl := bands[1].Levels[0]
	require.True(t, lvl.SkipsFor(entity.PriorityUrgent))
	require.False(t, lvl.SkipsFor(entity.PriorityHigh))
	require.True(t, bands[2].Contains(1e9))
}

func TestParseApprovalThresholdsRejectsBadBands(t *testing.T) {
	tests := map[string]string{
		"empty": `thresholds: []`,
		"gap": `
thresholds:
  - {name: a, min_amount: 0, max_amount: 100, levels: [{level: 1, required_role: r, sla_hours: 1}]}
  - {name: b, min_amount: 200, levels: [{level: 1, required_role: r, sla_hours: 1}]}`,
		"unbounded middle": `
thresholds:
  - {name: a, min_amount: 0, levels: [{level: 1, required_role: r, sla_hours: 1}]}
  - {name: b, min_amount: 200, levels: [{level: 1, required_role: r, sla_hours: 1}]}`,
		"level numbering": `
thresholds:
  - {name: a, min_amount: 0, levels: [{level: 2, required_role: r, sla_hours: 1}]}`,
		"missing role": `
thresholds:
  - {name: a, min_amount: 0, levels: [{level: 1, sla_hours: 1}]}`,
		"bad priority": `
thresholds:
  - {name: a, min_amount: 0, levels: [{level: 1, required_role: r, sla_hours: 1, skippable: true, skip_priorities: [asap]}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseApprovalThresholds([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadApprovalThresholds(t *testing.T) {
	bands, err := LoadApprovalThresholds("")
	require.NoError(t, err)
	require.Nil(t, bands)

	path := filepath.Join(t.TempDir(), "approval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bandsYAML), 0o644))
	bands, err = LoadApprovalThresholds(path)
	require.NoError(t, err)
	require.Len(t, bands, 3)

	_, err = LoadApprovalThresholds(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
