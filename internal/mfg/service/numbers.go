package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.New().String()[:32]
}

type prefixCounter func(ctx context.Context, subsidiary, prefix string) (int64, error)

// numberer 生成 MO-<年>-<序号> 与 PO[-<前缀>]-<年>-<序号>
type numberer struct {
	seq SequenceStore
}

func (n numberer) next(ctx context.Context, kind, subsidiary, prefix string, count prefixCounter) (string, error) {
	seq, err := n.seq.Next(ctx, kind+":"+subsidiary+":"+prefix, func(ctx context.Context) (int64, error) {
		return count(ctx, subsidiary, prefix)
	})
	if err != nil {
		return "", fmt.Errorf("generate %s number: %w", kind, err)
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

func moNumberPrefix(now time.Time) string {
	return fmt.Sprintf("MO-%d-", now.Year())
}

func poNumberPrefix(prefix string, now time.Time) string {
	if prefix == "" {
		return fmt.Sprintf("PO-%d-", now.Year())
	}
	return fmt.Sprintf("PO-%s-%d-", prefix, now.Year())
}
