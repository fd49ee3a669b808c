package engine

import "fmt"

// Collision selects what happens when a destination file already exists.
type Collision string

const (
	// CollisionDefault skips when source and destination are identical
	// (the source copy is redundant and gets deleted) and overwrites
	// when they differ.
	CollisionDefault Collision = "default"
	// CollisionSkip leaves both files untouched.
	CollisionSkip Collision = "skip"
	// CollisionOverwrite replaces the destination unconditionally.
	CollisionOverwrite Collision = "overwrite"
	// CollisionFail marks the file failed without touching either side.
	CollisionFail Collision = "fail"
)

// ParseCollision validates a user-supplied collision policy name.
func ParseCollision(s string) (Collision, error) {
	switch Collision(s) {
	case CollisionDefault, CollisionSkip, CollisionOverwrite, CollisionFail:
		return Collision(s), nil
	}
	return "", fmt.Errorf("unknown collision policy %q", s)
}
