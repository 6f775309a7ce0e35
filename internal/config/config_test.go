package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	cases := []struct {
		name    string
		vars    map[string]string
		wantErr string
		check   func(t *testing.T, c Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ":8080", c.HTTP.Addr)
				assert.Equal(t, 4, c.Game.Capacity)
				assert.Equal(t, 15*time.Second, c.Game.FoxGrace)
				assert.Equal(t, 30*time.Second, c.Game.TrapGrace)
				assert.Equal(t, 24*time.Hour, c.Redis.GameTTL)

				gc := c.GameConfig()
				assert.Equal(t, 4, gc.HandSize)
				assert.Zero(t, gc.ChickensToWin)
			},
		},
		{
			name: "overrides",
			vars: map[string]string{
				"PORT":            "9000",
				"GAME_CAPACITY":   "6",
				"FOX_GRACE":       "5s",
				"CHICKENS_TO_WIN": "3",
				"LOG_FORMAT":      "json",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ":9000", c.HTTP.Addr)
				assert.Equal(t, 6, c.Game.Capacity)
				assert.Equal(t, 5*time.Second, c.Game.FoxGrace)
				assert.Equal(t, 3, c.Game.ChickensToWin)
				assert.Equal(t, "json", c.Log.Format)
			},
		},
		{
			name:    "unparseable values fall back to defaults",
			vars: map[string]string{"FOX_GRACE": "soon", "HAND_SIZE": "many"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, 15*time.Second, c.Game.FoxGrace)
				assert.Equal(t, 4, c.Game.HandSize)
			},
		},
		{name: "capacity too large", vars: map[string]string{"GAME_CAPACITY": "9"}, wantErr: "GAME_CAPACITY"},
		{name: "capacity too small", vars: map[string]string{"GAME_CAPACITY": "1"}, wantErr: "GAME_CAPACITY"},
		{name: "negative chickens", vars: map[string]string{"CHICKENS_TO_WIN": "-1"}, wantErr: "CHICKENS_TO_WIN"},
		{name: "bad log format", vars: map[string]string{"LOG_FORMAT": "xml"}, wantErr: "LOG_FORMAT"},
		{name: "default secret outside dev", vars: map[string]string{"APP_ENV": "prod"}, wantErr: "JWT_SECRET"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.vars {
				t.Setenv(k, v)
			}
			c, err := LoadFromEnv()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}
