package handlers

import (
	"strconv"
	"strings"
	"time"

	"yams-sync/middleware"
	"yams-sync/models"
	"yams-sync/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// SetupCloudRoutes serves a RemoteStore over HTTP for device agents. The
// routes mirror what remote.HTTPStore calls.
func SetupCloudRoutes(app *fiber.App, store services.RemoteStore, progression *services.Progression, token string, logger zerolog.Logger) {
	log := logger.With().Str("component", "cloud_api").Logger()

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if !store.IsConnected(c.UserContext()) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", middleware.ServiceTokenMiddleware(token, logger))
	scope := middleware.OwnerScopeMiddleware()

	api.Get("/owners/:owner/profiles", scope, func(c *fiber.Ctx) error {
		profiles, err := store.ListProfiles(c.UserContext(), middleware.OwnerID(c))
		if err != nil {
			log.Error().Err(err).Msg("list profiles failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list profiles"})
		}
		return c.JSON(fiber.Map{"profiles": profiles})
	})

	api.Get("/owners/:owner/profiles/:id", scope, func(c *fiber.Ctx) error {
		p, found, err := store.GetProfile(c.UserContext(), middleware.OwnerID(c), paramID(c))
		if err != nil {
			log.Error().Err(err).Msg("get profile failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get profile"})
		}
		if !found {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "profile not found"})
		}
		return c.JSON(p)
	})

	api.Put("/owners/:owner/profiles/:id", scope, func(c *fiber.Ctx) error {
		var p models.PlayerProfile
		if err := c.BodyParser(&p); err != nil {
			return badRequest(c, "invalid profile document")
		}
		id := paramID(c)
		if p.ID != id {
			return badRequest(c, "profile id does not match path")
		}
		if err := p.Validate(); err != nil {
			return badRequest(c, err.Error())
		}
		if err := progression.CheckXP(p); err != nil {
			return badRequest(c, err.Error())
		}
		if err := store.PutProfile(c.UserContext(), middleware.OwnerID(c), p); err != nil {
			log.Error().Err(err).Str("profile_id", id).Msg("put profile failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store profile"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Delete("/owners/:owner/profiles/:id", scope, func(c *fiber.Ctx) error {
		if err := store.DeleteProfile(c.UserContext(), middleware.OwnerID(c), paramID(c)); err != nil {
			log.Error().Err(err).Msg("delete profile failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete profile"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Get("/owners/:owner/games", scope, func(c *fiber.Ctx) error {
		filter := models.GameRecordFilter{PlayerID: strings.Clone(c.Query("playerId"))}
		if since := c.Query("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return badRequest(c, "since must be RFC3339")
			}
			filter.Since = t
		}
		if limit := c.Query("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				return badRequest(c, "limit must be a non-negative integer")
			}
			filter.Limit = n
		}
		games, err := store.ListGameRecords(c.UserContext(), middleware.OwnerID(c), filter)
		if err != nil {
			log.Error().Err(err).Msg("list games failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list games"})
		}
		return c.JSON(fiber.Map{"games": games})
	})

	api.Post("/owners/:owner/games", scope, func(c *fiber.Ctx) error {
		var rec models.GameRecord
		if err := c.BodyParser(&rec); err != nil {
			return badRequest(c, "invalid game record")
		}
		if rec.ID == "" || rec.PlayerID == "" {
			return badRequest(c, "game record requires id and playerId")
		}
		if err := store.PutGameRecord(c.UserContext(), middleware.OwnerID(c), rec); err != nil {
			log.Error().Err(err).Str("game_id", rec.ID).Msg("put game failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store game"})
		}
		return c.SendStatus(fiber.StatusCreated)
	})
}
