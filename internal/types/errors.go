package types

import "errors"

// Sentinel errors for Agent00 operations.
var (
	// ErrRuleNotFound indicates no rule exists with the requested ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule indicates a rule with the same ID or name already exists.
	ErrDuplicateRule = errors.New("rule already exists")

	// ErrEmptyName indicates a rule has a blank name.
	ErrEmptyName = errors.New("rule name is empty")

	// ErrNameTooLong indicates a rule name exceeds MaxNameLength.
	ErrNameTooLong = errors.New("rule name too long")

	// ErrEmptyCondition indicates a rule has a blank condition.
	ErrEmptyCondition = errors.New("rule condition is empty")

	// ErrConditionTooLong indicates a condition exceeds MaxConditionLength.
	ErrConditionTooLong = errors.New("rule condition too long")

	// ErrInvalidCondition indicates a condition failed to tokenize or parse.
	ErrInvalidCondition = errors.New("invalid rule condition")

	// ErrInvalidPriority indicates a priority outside [MinPriority, MaxPriority].
	ErrInvalidPriority = errors.New("priority out of range")

	// ErrInvalidConfidence indicates a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence out of range")
)
