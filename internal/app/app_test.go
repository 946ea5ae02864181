package app

import (
	"testing"
	"time"

	"github.com/itorigin/site/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMatchOriginPattern(t *testing.T) {
	cases := []struct {
		pattern, host string
		want          bool
	}{
		{"itorigin.com", "itorigin.com", true},
		{"*.itorigin.com", "admin.itorigin.com", true},
		{"*.itorigin.com", "itorigin.com", false},
		{"*.itorigin.com", "evilitorigin.com", false},
		{"localhost:*", "localhost:3000", true},
		{"localhost:*", "localhost.evil.com", false},
		{"itorigin.com", "itorigin.com.evil.com", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchOriginPattern(tc.pattern, tc.host), "%s vs %s", tc.pattern, tc.host)
	}
}

func TestCORSAllowOrigin(t *testing.T) {
	prod := &config.AppConfig{Env: "production", AllowedOrigins: []string{"https://itorigin.com", "*.itorigin.com"}}
	allow := corsConfig(prod).AllowOriginFunc
	assert.True(t, allow("https://itorigin.com"))
	assert.True(t, allow("https://admin.itorigin.com"))
	assert.False(t, allow("https://example.com"))

	dev := &config.AppConfig{Env: "development", AllowedOrigins: []string{"https://itorigin.com"}}
	assert.True(t, corsConfig(dev).AllowOriginFunc("http://localhost:5173"))
}

func TestParseTimezoneLocation(t *testing.T) {
	loc, err := parseTimezoneLocation("+07:00")
	require.NoError(t, err)
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 7*3600, offset)

	loc, err = parseTimezoneLocation("-03:30")
	require.NoError(t, err)
	_, offset = time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(3*3600 + 30*60), offset)

	loc, err = parseTimezoneLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = parseTimezoneLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestApplyRuntimeSettingsRequiresSecretInProduction(t *testing.T) {
	_, err := applyRuntimeSettings(&config.AppConfig{Env: "production"}, zap.NewNop())
	assert.Error(t, err)

	loc, err := applyRuntimeSettings(&config.AppConfig{Env: "development"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
