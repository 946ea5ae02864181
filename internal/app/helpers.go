package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/itorigin/site/internal/config"
	"go.uber.org/zap"
)

// applyRuntimeSettings applies process-wide settings and returns the
// location campaigns are scheduled in.
func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) (*time.Location, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		if !cfg.IsDev() {
			return nil, fmt.Errorf("jwt_secret is required in production")
		}
		logger.Warn("jwt_secret is empty, using built-in development secret")
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := parseTimezoneLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return loc, nil
}

func parseTimezoneLocation(raw string) (*time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		return time.UTC, nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if len(tz) == 6 && (tz[0] == '+' || tz[0] == '-') && tz[3] == ':' {
		h, errH := strconv.Atoi(tz[1:3])
		m, errM := strconv.Atoi(tz[4:6])
		if errH == nil && errM == nil && h <= 23 && m <= 59 {
			offset := h*3600 + m*60
			if tz[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(tz, offset), nil
		}
	}
	return nil, fmt.Errorf("expect IANA zone (e.g. Asia/Ho_Chi_Minh) or UTC offset (e.g. +07:00)")
}
