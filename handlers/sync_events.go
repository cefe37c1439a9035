package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"yams-sync/models"

	"github.com/gofiber/fiber/v2"
)

// StatusSource reports the current sync state.
type StatusSource interface {
	OwnerID() string
	Status() models.SyncState
}

// SyncSnapshot is what the sync indicator shows.
type SyncSnapshot struct {
	OwnerID        string    `json:"ownerId"`
	LastSyncTime   time.Time `json:"lastSyncTime"`
	Pending        int       `json:"pending"`
	SyncInProgress bool      `json:"syncInProgress"`
}

func snapshotOf(src StatusSource) SyncSnapshot {
	st := src.Status()
	return SyncSnapshot{
		OwnerID:        src.OwnerID(),
		LastSyncTime:   st.LastSyncTime,
		Pending:        len(st.PendingChanges),
		SyncInProgress: st.SyncInProgress,
	}
}

func (s SyncSnapshot) changed(prev SyncSnapshot) bool {
	return s.Pending != prev.Pending ||
		s.SyncInProgress != prev.SyncInProgress ||
		!s.LastSyncTime.Equal(prev.LastSyncTime)
}

// streamSyncStatus pushes a "status" event whenever the sync state changes,
// polling every interval. Idle ticks send a comment so a dead client is
// noticed on the next flush.
func streamSyncStatus(src StatusSource, interval time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		done := c.Context().Done()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			last := snapshotOf(src)
			if writeStatus(w, last) != nil {
				return
			}
			for {
				select {
				case <-ticker.C:
					cur := snapshotOf(src)
					if !cur.changed(last) {
						if _, err := w.WriteString(":\n\n"); err != nil {
							return
						}
						if err := w.Flush(); err != nil {
							return
						}
						continue
					}
					last = cur
					if writeStatus(w, cur) != nil {
						return
					}
				case <-done:
					return
				}
			}
		})
		return nil
	}
}

func writeStatus(w *bufio.Writer, s SyncSnapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
