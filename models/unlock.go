package models

// UnlockKind is a category of customization option gated by level.
type UnlockKind string

const (
	UnlockColor  UnlockKind = "color"
	UnlockAvatar UnlockKind = "avatar"
	UnlockTitle  UnlockKind = "title"
)

// Unlock is one customization option and the level that makes it available.
type Unlock struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Level int    `yaml:"level" json:"level"`
}

// UnlockTable is the static threshold table, loaded once at start.
type UnlockTable struct {
	Colors  []Unlock `yaml:"colors"`
	Avatars []Unlock `yaml:"avatars"`
	Titles  []Unlock `yaml:"titles"`
}

// UnlockSet lists option ids available (or newly available) to a player.
type UnlockSet struct {
	Colors  []string `json:"colors"`
	Avatars []string `json:"avatars"`
	Titles  []string `json:"titles"`
}

func (s UnlockSet) Empty() bool {
	return len(s.Colors) == 0 && len(s.Avatars) == 0 && len(s.Titles) == 0
}
