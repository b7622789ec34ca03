package reconciler

import (
	"fmt"

	"github.com/magabrotheeeer/subscriber-service/internal/config"
	subservice "github.com/magabrotheeeer/subscriber-service/internal/services/subscriber"
	"github.com/magabrotheeeer/subscriber-service/internal/subscriber"
)

// serviceOptions переводит секцию subscriber конфига в настройки сервиса.
func serviceOptions(cfg config.Subscriber) (subservice.Options, error) {
	opts := subservice.Options{
		MaxDevicesCount: cfg.MaxDevicesCount,
		CacheTTL:        cfg.CacheTTL,
		LBAddress:       cfg.LBAddress,
	}

	switch cfg.DanglingPolicy {
	case "fail", "":
		opts.DanglingPolicy = subscriber.DanglingFail
	case "skip":
		opts.DanglingPolicy = subscriber.DanglingSkip
	default:
		return subservice.Options{}, fmt.Errorf("unknown dangling policy %q", cfg.DanglingPolicy)
	}

	switch cfg.OfficialRemoval {
	case "any", "":
		opts.RemovalMode = subscriber.RemoveAnyMatch
	case "official_only":
		opts.RemovalMode = subscriber.RemoveOfficialOnly
	default:
		return subservice.Options{}, fmt.Errorf("unknown official removal mode %q", cfg.OfficialRemoval)
	}

	return opts, nil
}
