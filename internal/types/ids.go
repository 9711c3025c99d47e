package types

import (
	"time"

	"github.com/google/uuid"
)

// RuleID identifies a rule. UUIDv7 for rules created by Agent00; rules loaded
// from files may carry any non-empty string.
type RuleID string

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// RuleIDTime extracts the creation time embedded in a UUIDv7 rule ID.
// Returns zero time for non-UUID IDs; caller should check IsZero().
func RuleIDTime(id RuleID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
