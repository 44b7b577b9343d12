package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-hub/internal/quota"
)

func decodeTenantRequest(t *testing.T, raw string) createTenantRequest {
	t.Helper()
	var req createTenantRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return req
}

func TestCreateTenantRequestLimits(t *testing.T) {
	tests := []struct {
		name string
		body string
		want quota.Limits
	}{
		{
			name: "omitted limits default to unlimited",
			body: `{"name": "acme"}`,
			want: quota.Limits{PerSecond: quota.Unlimited, PerDay: quota.Unlimited, PerMonth: quota.Unlimited},
		},
		{
			name: "explicit zero denies every send",
			body: `{"name": "acme", "messages_per_day": 0}`,
			want: quota.Limits{PerSecond: quota.Unlimited, PerDay: 0, PerMonth: quota.Unlimited},
		},
		{
			name: "explicit minus one is unlimited",
			body: `{"name": "acme", "messages_per_second": -1, "messages_per_day": 500}`,
			want: quota.Limits{PerSecond: quota.Unlimited, PerDay: 500, PerMonth: quota.Unlimited},
		},
		{
			name: "all windows set",
			body: `{"name": "acme", "messages_per_second": 5, "messages_per_day": 500, "messages_per_month": 5000}`,
			want: quota.Limits{PerSecond: 5, PerDay: 500, PerMonth: 5000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := decodeTenantRequest(t, tt.body)
			assert.Equal(t, tt.want, req.limits())
		})
	}
}
