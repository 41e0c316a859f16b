/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTimeDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TimeDuration
		wantErr bool
	}{
		{"Integer seconds", `60`, TimeDuration(time.Minute), false},
		{"Integer seconds as string", `"30"`, TimeDuration(30 * time.Second), false},
		{"Human-readable", `"1m30s"`, TimeDuration(90 * time.Second), false},
		{"Invalid format", `"soon"`, 0, true},
		{"Negative value", `"-5"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d TimeDuration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, d)
		})
	}
}

func TestTimeDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct{ Window TimeDuration }
	require.NoError(t, yaml.Unmarshal([]byte("window: 2m"), &cfg))
	require.Equal(t, TimeDuration(2*time.Minute), cfg.Window)

	require.NoError(t, yaml.Unmarshal([]byte("window: 15"), &cfg))
	require.Equal(t, TimeDuration(15*time.Second), cfg.Window)
}

func TestGetTimeDuration(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(`{"a": 60, "b": "45s", "c": "bad"}`), DataTypeJSON))
	va.Set("d", "120")

	d, err := GetTimeDuration(va, "a")
	require.NoError(t, err)
	require.Equal(t, TimeDuration(time.Minute), d)

	d, err = GetTimeDuration(va, "b")
	require.NoError(t, err)
	require.Equal(t, TimeDuration(45*time.Second), d)

	d, err = GetTimeDuration(va, "d")
	require.NoError(t, err)
	require.Equal(t, TimeDuration(2*time.Minute), d)

	_, err = GetTimeDuration(va, "c")
	require.EqualError(t, err, `c: invalid time duration format (bad): time: invalid duration "bad"`)
}

func TestTimeDuration_UnmarshalKey(t *testing.T) {
	type opLimit struct {
		Name   string
		Window TimeDuration
	}
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(`
ops:
  - name: getBudgets
    window: 10s
  - name: addExpense
    window: 5
`), DataTypeYAML))
	var ops []opLimit
	require.NoError(t, va.UnmarshalKey("ops", &ops, WithTimeDurations()))
	require.Equal(t, []opLimit{
		{Name: "getBudgets", Window: TimeDuration(10 * time.Second)},
		{Name: "addExpense", Window: TimeDuration(5 * time.Second)},
	}, ops)
}
