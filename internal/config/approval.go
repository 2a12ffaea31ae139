package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/bitfantasy/nimo-mfg/internal/mfg/entity"
	"gopkg.in/yaml.v3"
)

type approvalFile struct {
	Thresholds []entity.ApprovalThreshold `yaml:"thresholds"`
}

// LoadApprovalThresholds 读取审批金额区间；path 为空返回 nil（由服务使用内置区间）
func LoadApprovalThresholds(path string) ([]entity.ApprovalThreshold, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read approval config: %w", err)
	}
	return ParseApprovalThresholds(raw)
}

// ParseApprovalThresholds 解析并校验区间：按下限排序，首尾相接，层级从1连续编号
func ParseApprovalThresholds(raw []byte) ([]entity.ApprovalThreshold, error) {
	var f approvalFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse approval config: %w", err)
	}
	bands := f.Thresholds
	if len(bands) == 0 {
		return nil, fmt.Errorf("approval config has no thresholds")
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinAmount < bands[j].MinAmount })

	for i, b := range bands {
		if b.MaxAmount != nil && *b.MaxAmount <= b.MinAmount {
			return nil, fmt.Errorf("threshold %q: max_amount must exceed min_amount", b.Name)
		}
		if i < len(bands)-1 {
			if b.MaxAmount == nil {
				return nil, fmt.Errorf("threshold %q: only the last band may be unbounded", b.Name)
			}
			if *b.MaxAmount != bands[i+1].MinAmount {
				return nil, fmt.Errorf("threshold %q: gap or overlap before %q", b.Name, bands[i+1].Name)
			}
		}
		if len(b.Levels) == 0 {
			return nil, fmt.Errorf("threshold %q: at least one level is required", b.Name)
		}
		for j, l := range b.Levels {
			if l.Level != j+1 {
				return nil, fmt.Errorf("threshold %q: levels must be numbered from 1 in order", b.Name)
			}
			if l.RequiredRole == "" {
				return nil, fmt.Errorf("threshold %q level %d: required_role is empty", b.Name, l.Level)
			}
			if l.SLAHours <= 0 {
				return nil, fmt.Errorf("threshold %q level %d: sla_hours must be positive", b.Name, l.Level)
			}
			for _, p := range l.SkipPriorities {
				if !p.Valid() {
					return nil, fmt.Errorf("threshold %q level %d: unknown priority %q", b.Name, l.Level, p)
				}
			}
		}
	}
	return bands, nil
}
