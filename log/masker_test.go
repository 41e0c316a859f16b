/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budzeciak/rpc-proxy/log"
	"github.com/budzeciak/rpc-proxy/log/logtest"
)

func TestMasker_DefaultMasks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "authorization header",
			input: "POST /rpc/get_budgets\r\nAuthorization: Bearer eyJhbGciOi\r\n",
			want:  "POST /rpc/get_budgets\r\nAuthorization: ***\r\n",
		},
		{
			name:  "apikey header",
			input: "apikey: anon-key-value\r\nContent-Type: application/json\r\n",
			want:  "apikey: ***\r\nContent-Type: application/json\r\n",
		},
		{
			name:  "apikey in json",
			input: `{"apikey": "anon-key-value", "rpc": "x"}`,
			want:  `{"apikey": "***", "rpc": "x"}`,
		},
		{
			name:  "token in query",
			input: "https://store.example/?token=abc123&x=1",
			want:  "https://store.example/?token=***&x=1",
		},
		{
			name:  "nothing to mask",
			input: "rate limit exceeded for rl:getBudgets:clientA",
			want:  "rate limit exceeded for rl:getBudgets:clientA",
		},
	}
	masker := log.NewMasker(log.DefaultMasks)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, masker.Mask(tt.input))
		})
	}
}

func TestMasker_CustomMask(t *testing.T) {
	masker := log.NewMasker([]log.MaskingRuleConfig{{
		Field: "client-id",
		Masks: []log.MaskConfig{{RegExp: `client-id=\w+`, Mask: "client-id=<hidden>"}},
	}})
	require.Equal(t, "client-id=<hidden> ok", masker.Mask("client-id=abc ok"))
}

func TestMaskingLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	logger := log.NewMaskingLogger(recorder, log.NewMasker(log.DefaultMasks))

	logger.With(log.String("req", "apikey: secret\r\n")).Warn(
		"upstream call failed: Authorization: Bearer abc\r\n",
		log.Error(errors.New(`bad response {"apikey": "secret"}`)),
	)

	entries := recorder.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "upstream call failed: Authorization: ***\r\n", entries[0].Text)

	reqField, found := entries[0].FindField("req")
	require.True(t, found)
	require.Equal(t, "apikey: ***\r\n", string(reqField.Bytes))

	errField, found := entries[0].FindField("error")
	require.True(t, found)
	require.EqualError(t, errField.Any.(error), `bad response {"apikey": "***"}`)
}
