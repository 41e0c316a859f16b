/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budzeciak/rpc-proxy/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		want    *Config
		wantErr string
	}{
		{
			name:    "defaults",
			cfgData: ``,
			want:    NewDefaultConfig(),
		},
		{
			name: "text format with file output",
			cfgData: `
log:
  level: DEBUG
  format: text
  output: file
  file:
    path: /var/log/proxy.log
    rotation:
      maxSize: 10M
      maxBackups: 3
  masking:
    enabled: false
`,
			want: &Config{
				Level:  LevelDebug,
				Format: FormatText,
				Output: OutputFile,
				File: FileOutputConfig{
					Path:     "/var/log/proxy.log",
					Rotation: FileRotationConfig{MaxSize: 10 * 1024 * 1024, MaxBackups: 3},
				},
				Masking: MaskingConfig{Enabled: false, UseDefaultRules: true},
			},
		},
		{
			name:    "unknown level",
			cfgData: "log:\n  level: verbose\n",
			wantErr: `log.level: unknown value "verbose", should be one of [error warn info debug]`,
		},
		{
			name:    "file output without path",
			cfgData: "log:\n  output: file\n",
			wantErr: `log.file.path: cannot be empty when "file" output is used`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg)
		})
	}
}
