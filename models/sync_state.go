package models

import "time"

// ChangeAction is the kind of pending mutation recorded for an entity.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

func (a ChangeAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// EntityType distinguishes synchronized entities sharing the pending set.
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityGame   EntityType = "game"
)

// ChangeRecord is a pending mutation. At most one exists per EntityID.
type ChangeRecord struct {
	EntityID   string       `json:"entityId"`
	EntityType EntityType   `json:"entityType,omitempty"` // empty reads as player
	Action     ChangeAction `json:"action"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Kind returns the entity type, defaulting records written by older clients
// to players.
func (r ChangeRecord) Kind() EntityType {
	if r.EntityType == "" {
		return EntityPlayer
	}
	return r.EntityType
}

// SyncState is persisted as a whole after every mutation.
// SyncInProgress is only ever true in memory.
type SyncState struct {
	LastSyncTime   time.Time      `json:"lastSyncTime"`
	PendingChanges []ChangeRecord `json:"pendingChanges"`
	SyncInProgress bool           `json:"syncInProgress"`
}
