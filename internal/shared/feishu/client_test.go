package feishu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOpenAPI struct {
	tokenCalls atomic.Int32
	messages   []map[string]interface{}
	failSend   bool
}

func (f *fakeOpenAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/open-apis/auth/v3/app_access_token/internal":
			f.tokenCalls.Add(1)
			io.WriteString(w, `{"code":0,"msg":"ok","app_access_token":"t-123","expire":7200}`)
		case r.URL.Path == "/open-apis/im/v1/messages":
			require.Equal(t, "Bearer t-123", r.Header.Get("Authorization"))
			require.Equal(t, "open_id", r.URL.Query().Get("receive_id_type"))
			if f.failSend {
				io.WriteString(w, `{"code":230002,"msg":"bot not in chat"}`)
				return
			}
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.messages = append(f.messages, body)
			io.WriteString(w, `{"code":0,"msg":"ok","data":{"message_id":"om_1"}}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestAlerterSendsCardAndCachesToken(t *testing.T) {
	api := &fakeOpenAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	alerter := NewAlerter(NewClient("app", "secret", WithBaseURL(srv.URL)), "ou_ops")
	ctx := context.Background()
	require.NoError(t, alerter.SendAlert(ctx, "Approval escalated", []string{"MO-2026-0001", "level 1 overdue"}))
	require.NoError(t, alerter.SendAlert(ctx, "QC failed", nil))

	require.Equal(t, int32(1), api.tokenCalls.Load())
	require.Len(t, api.messages, 2)
	require.Equal(t, "ou_ops", api.messages[0]["receive_id"])
	content := api.messages[0]["content"].(string)
	require.True(t, strings.Contains(content, "Approval escalated"))
	require.True(t, strings.Contains(content, "MO-2026-0001"))
}

func TestAlerterReturnsAPIError(t *testing.T) {
	api := &fakeOpenAPI{failSend: true}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	alerter := NewAlerter(NewClient("app", "secret", WithBaseURL(srv.URL)), "ou_ops")
	err := alerter.SendAlert(context.Background(), "QC failed", []string{"MO-2026-0002"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "230002")
}
