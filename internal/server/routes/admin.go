package routes

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/imagecache/internal/cache"
)

// RegisterAdminRoutes 暴露 /-/ 下的诊断与维护接口。
func RegisterAdminRoutes(app *fiber.App, buffered *cache.BufferedDiskCache) {
	if app == nil || buffered == nil {
		return
	}
	diskCache := buffered.Cache()

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(encodeStats(buffered))
	})

	app.Get("/-/dump", func(c fiber.Ctx) error {
		info, err := diskCache.DumpInfo()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(info)
	})

	app.Post("/-/maintain", func(c fiber.Ctx) error {
		if err := diskCache.Maintain(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(encodeStats(buffered))
	})

	app.Post("/-/trim", func(c fiber.Ctx) error {
		switch strings.ToLower(c.Query("level", "minimum")) {
		case "minimum":
			diskCache.TrimToMinimum()
		case "nothing":
			diskCache.TrimToNothing()
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_trim_level"})
		}
		return c.JSON(encodeStats(buffered))
	})

	app.Post("/-/clear-old", func(c fiber.Ctx) error {
		maxAge, err := time.ParseDuration(c.Query("max_age"))
		if err != nil || maxAge < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_max_age"})
		}
		oldest := diskCache.ClearOldEntries(maxAge)
		return c.JSON(clearOldPayload{OldestRemainingSeconds: int64(oldest / time.Second)})
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		buffered.ClearAll()
		return c.SendStatus(fiber.StatusNoContent)
	})
}

type statsPayload struct {
	cache.Stats
	Enabled            bool  `json:"enabled"`
	Staged             int   `json:"staged"`
	OutstandingBuffers int64 `json:"outstanding_buffers"`
}

type clearOldPayload struct {
	OldestRemainingSeconds int64 `json:"oldest_remaining_seconds"`
}

func encodeStats(buffered *cache.BufferedDiskCache) statsPayload {
	return statsPayload{
		Stats:              buffered.Cache().Stats(),
		Enabled:            buffered.Cache().IsEnabled(),
		Staged:             buffered.Staging().Len(),
		OutstandingBuffers: buffered.Pool().Outstanding(),
	}
}
