package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagecache/internal/cache"
	"github.com/any-hub/imagecache/internal/logging"
)

type entryHandler struct {
	cache  *cache.BufferedDiskCache
	logger *logrus.Logger
}

type putPayload struct {
	Key        string `json:"key"`
	ResourceID string `json:"resource_id"`
	Size       int    `json:"size"`
}

func entryKey(c fiber.Ctx) (string, bool) {
	key := strings.TrimSpace(c.Params("*"))
	return key, key != ""
}

func keyRequired(c fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
}

func (h *entryHandler) head(c fiber.Ctx) error {
	key, ok := entryKey(c)
	if !ok {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !h.cache.Probe(key) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *entryHandler) get(c fiber.Ctx) error {
	key, ok := entryKey(c)
	if !ok {
		return keyRequired(c)
	}
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ref, err := h.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		h.log(c, key, false, -1).Debug("cache miss")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	if err != nil {
		return err
	}
	// 响应体在 handler 返回后才写出，必须先拷贝再关闭句柄
	body := append([]byte(nil), ref.Get().B...)
	ref.Close()

	h.log(c, key, true, int64(len(body))).Debug("cache hit")
	c.Set(fiber.HeaderContentType, http.DetectContentType(body))
	return c.Send(body)
}

func (h *entryHandler) put(c fiber.Ctx) error {
	key, ok := entryKey(c)
	if !ok {
		return keyRequired(c)
	}
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty_body"})
	}
	ref := h.cache.Pool().FromBytes(body)
	defer ref.Close()
	if err := h.cache.Put(key, ref); err != nil {
		return err
	}

	h.log(c, key, false, int64(len(body))).Info("cache entry stored")
	return c.Status(fiber.StatusCreated).JSON(putPayload{
		Key:        key,
		ResourceID: cache.ResourceID(key),
		Size:       len(body),
	})
}

func (h *entryHandler) delete(c fiber.Ctx) error {
	key, ok := entryKey(c)
	if !ok {
		return keyRequired(c)
	}
	h.cache.Remove(key)
	h.log(c, key, false, -1).Info("cache entry removed")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *entryHandler) log(c fiber.Ctx, key string, hit bool, size int64) *logrus.Entry {
	return h.logger.
		WithFields(logging.CacheFields(key, cache.ResourceID(key), hit, size)).
		WithField("request_id", RequestID(c))
}
