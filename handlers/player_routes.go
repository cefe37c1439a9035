package handlers

import (
	"strconv"
	"strings"
	"time"

	"yams-sync/models"
	"yams-sync/services"

	"github.com/gofiber/fiber/v2"
)

// SetupPlayerRoutes registers the device API used by the game UI.
func SetupPlayerRoutes(app *fiber.App, players *services.PlayerService, engine *services.SyncEngine, backup *services.BackupService) {
	app.Get("/players", func(c *fiber.Ctx) error {
		profiles, err := players.ListProfiles()
		if err != nil {
			return respondError(c, "failed to list players", err)
		}
		return c.JSON(fiber.Map{"players": profiles})
	})

	app.Post("/players", func(c *fiber.Ctx) error {
		var in services.ProfileInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		p, err := players.CreateProfile(in)
		if err != nil {
			return respondError(c, "failed to create player", err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	app.Get("/players/:id", func(c *fiber.Ctx) error {
		p, err := players.GetProfile(paramID(c))
		if err != nil {
			return respondError(c, "failed to get player", err)
		}
		return c.JSON(p)
	})

	app.Patch("/players/:id", func(c *fiber.Ctx) error {
		var upd services.ProfileUpdate
		if err := c.BodyParser(&upd); err != nil {
			return badRequest(c, "invalid request body")
		}
		p, err := players.UpdateProfile(paramID(c), upd)
		if err != nil {
			return respondError(c, "failed to update player", err)
		}
		return c.JSON(p)
	})

	app.Delete("/players/:id", func(c *fiber.Ctx) error {
		if err := players.DeleteProfile(c.UserContext(), paramID(c)); err != nil {
			return respondError(c, "failed to delete player", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Post("/players/:id/games", func(c *fiber.Ctx) error {
		var result models.GameResult
		if err := c.BodyParser(&result); err != nil {
			return badRequest(c, "invalid request body")
		}
		out, err := players.RecordGame(paramID(c), result)
		if err != nil {
			return respondError(c, "failed to record game", err)
		}
		return c.Status(fiber.StatusCreated).JSON(out)
	})

	app.Get("/players/:id/games", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		games, err := players.ListGames(models.GameRecordFilter{PlayerID: paramID(c), Limit: limit})
		if err != nil {
			return respondError(c, "failed to list games", err)
		}
		return c.JSON(fiber.Map{"games": games})
	})

	app.Post("/players/:id/xp", func(c *fiber.Ctx) error {
		var body struct {
			Amount int64 `json:"amount"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		out, err := players.AwardXP(paramID(c), body.Amount)
		if err != nil {
			return respondError(c, "failed to award xp", err)
		}
		return c.JSON(out)
	})

	app.Get("/players/:id/unlocks", func(c *fiber.Ctx) error {
		p, err := players.GetProfile(paramID(c))
		if err != nil {
			return respondError(c, "failed to get player", err)
		}
		prog := players.Progression()
		return c.JSON(fiber.Map{
			"level":         p.Level,
			"xp":            p.XP,
			"xpForNext":     prog.XPForNextLevel(p.Level),
			"unlocked":      prog.UnlockSetForLevel(p.Level),
			"nextLevelGain": prog.NewUnlocks(p.Level, p.Level+1),
		})
	})

	app.Post("/opponents", func(c *fiber.Ctx) error {
		var body struct {
			Difficulty models.Difficulty `json:"difficulty"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		p, err := players.NewAIOpponent(body.Difficulty)
		if err != nil {
			return respondError(c, "failed to create opponent", err)
		}
		return c.JSON(p)
	})

	// "Sync now" reuses the periodic flow; a running sync is reported, not queued.
	app.Post("/sync", func(c *fiber.Ctx) error {
		return c.JSON(engine.SyncAll(c.UserContext()))
	})

	app.Post("/sync/pull", func(c *fiber.Ctx) error {
		return c.JSON(engine.PullAll(c.UserContext()))
	})

	app.Get("/sync/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         snapshotOf(engine),
			"pendingChanges": engine.Status().PendingChanges,
		})
	})

	app.Get("/sync/events", streamSyncStatus(engine, 2*time.Second))

	app.Get("/backup", func(c *fiber.Ctx) error {
		data, err := backup.ExportJSON()
		if err != nil {
			return respondError(c, "failed to export backup", err)
		}
		c.Attachment(backup.FileName())
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(data)
	})

	app.Post("/backup", func(c *fiber.Ctx) error {
		res, err := backup.Import(c.Body())
		if err != nil {
			return respondError(c, "failed to import backup", err)
		}
		return c.JSON(res)
	})
}

// paramID copies the :id parameter out of fiber's reused request buffer.
func paramID(c *fiber.Ctx) string {
	return strings.Clone(c.Params("id"))
}
