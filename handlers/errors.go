package handlers

import (
	"errors"

	"yams-sync/services"

	"github.com/gofiber/fiber/v2"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrLocked):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidProfile),
		errors.Is(err, services.ErrInvalidXPAmount),
		errors.Is(err, services.ErrInvalidGame),
		errors.Is(err, services.ErrInvalidBackup),
		errors.Is(err, services.ErrAIProfile):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, msg string, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
