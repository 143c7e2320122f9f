// Package snowflake generates time-ordered 64-bit identifiers and decodes
// their embedded creation timestamps. Session ids, retrieval codes, and entity
// surrogate keys all share this id space, which lets expiry checks derive the
// creation time from the key itself instead of tracking it separately.
package snowflake

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ID is a time-ordered 64-bit identifier.
type ID = snowflake.ID

// Generator produces unique ids. Safe for concurrent use; ids from the same
// generator are monotonically non-decreasing.
type Generator struct {
	node *snowflake.Node
}

// New creates a Generator for the given node id (0-1023). Multi-replica
// deployments must assign distinct node ids to keep ids globally unique.
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// Generate returns a fresh id. Never fails.
func (g *Generator) Generate() ID {
	return g.node.Generate()
}

// DecodeTime recovers the creation timestamp embedded in an id. The encoding
// is millisecond-granular, which is lossless for the minute-level age checks
// performed on sessions and retrieval codes.
func DecodeTime(id ID) time.Time {
	return time.UnixMilli(id.Time())
}

// Parse converts the decimal wire form of an id back to an ID. Returns false
// for anything that is not a plain base-10 64-bit integer.
func Parse(s string) (ID, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return snowflake.ID(n), true
}
