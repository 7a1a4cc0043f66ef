package cmd

import (
	"testing"
	"time"

	"github.com/mselser95/fill-reconciler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands_Registered(t *testing.T) {
	want := map[string]bool{"run": false, "reconcile": false, "status": false, "position": false}

	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
			assert.NotNil(t, c.RunE, "%s should have RunE", c.Name())
		}
	}

	for name, found := range want {
		assert.True(t, found, "command %s not registered", name)
	}
}

func TestReconcileCommand_Flags(t *testing.T) {
	for _, name := range []string{"order-id", "symbol", "quantity", "side", "reference-price", "submitted-at", "timeout", "json"} {
		assert.NotNil(t, reconcileCmd.Flags().Lookup(name), "flag %s not defined", name)
	}

	assert.Equal(t, "q", reconcileCmd.Flags().Lookup("quantity").Shorthand)
	assert.Equal(t, "buy", reconcileCmd.Flags().Lookup("side").DefValue)
}

func TestPositionCommand_Flags(t *testing.T) {
	assert.NotNil(t, positionCmd.Flags().Lookup("symbol"))
	assert.NotNil(t, positionCmd.Flags().Lookup("expected"))
}

func TestIntentFlags_Intent(t *testing.T) {
	tests := []struct {
		name    string
		flags   intentFlags
		want    types.Side
		wantAt  time.Time
		wantErr bool
	}{
		{
			name:  "buy_default_time",
			flags: intentFlags{orderID: "o-1", symbol: "TOKEN", quantity: 10, side: "buy"},
			want:  types.SideBuy,
		},
		{
			name:   "sell_with_time",
			flags:  intentFlags{orderID: "o-1", symbol: "TOKEN", quantity: 10, side: "SELL", submittedAt: "2026-01-02T03:04:05Z"},
			want:   types.SideSell,
			wantAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:    "bad_side",
			flags:   intentFlags{orderID: "o-1", symbol: "TOKEN", quantity: 10, side: "hold"},
			wantErr: true,
		},
		{
			name:    "bad_time",
			flags:   intentFlags{orderID: "o-1", symbol: "TOKEN", quantity: 10, side: "buy", submittedAt: "yesterday"},
			wantErr: true,
		},
		{
			name:    "zero_quantity",
			flags:   intentFlags{orderID: "o-1", symbol: "TOKEN", side: "buy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := tt.flags.intent()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.Side)
			assert.False(t, intent.SubmittedAt.IsZero())
			if !tt.wantAt.IsZero() {
				assert.True(t, tt.wantAt.Equal(intent.SubmittedAt))
			}
		})
	}
}
