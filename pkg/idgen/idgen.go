// Package idgen generates unique, roughly time-ordered identifiers using
// the Sonyflake algorithm. It is used for default snapshot names when the
// caller does not supply one.
package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// Generator produces prefixed unique IDs.
type Generator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGenerator     *Generator
	defaultGeneratorOnce sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	defaultGeneratorOnce.Do(func() {
		defaultGenerator = New()
	})
	return defaultGenerator
}

// New creates a new ID generator.
func New() *Generator {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if sf == nil {
		// Sonyflake refuses start times in the future relative to a
		// skewed clock; fall back to now.
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			StartTime: time.Now(),
		})
	}
	return &Generator{sf: sf}
}

// SnapshotName generates a default snapshot name: snap-<id>.
func (g *Generator) SnapshotName() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("generate snapshot name: %w", err)
	}
	return fmt.Sprintf("snap-%d", id), nil
}
