package feishu

import (
	"context"
	"time"
)

// Alerter 把高风险业务事件推送给固定接收人
type Alerter struct {
	client *FeishuClient
	userID string
	now    func() time.Time
}

func NewAlerter(client *FeishuClient, userID string) *Alerter {
	return &Alerter{client: client, userID: userID, now: time.Now}
}

// SendAlert 发送告警卡片
func (a *Alerter) SendAlert(ctx context.Context, title string, lines []string) error {
	return a.client.SendUserCard(ctx, a.userID, NewAlertCard(title, lines, a.now()))
}
