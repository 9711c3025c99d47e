// Package store provides the rule sources the decision engine reads from:
// a SQL-backed store for managed rules and a YAML file source for
// deployments that keep rules in version control.
//
// Both sources notify an Invalidator after every change to the rule set so
// the engine's candidate index never serves a stale rule set.
package store

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"

	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

// Invalidator is notified whenever the rule set changes.
// *rules.Engine implements it.
type Invalidator interface {
	InvalidateIndex()
}

// InvalidatorFunc adapts a function to Invalidator. It lets a source be built
// before the engine that reads from it.
type InvalidatorFunc func()

// InvalidateIndex calls f.
func (f InvalidatorFunc) InvalidateIndex() { f() }

// Defaults applied to rules that omit optional fields.
const (
	DefaultPriority   = 50
	DefaultConfidence = 1.0
	DefaultCategory   = "general"
)

type options struct {
	invalidator Invalidator
	logger      *log.Logger
	clock       func() time.Time
}

// Option configures a SQLStore or FileSource.
type Option func(*options)

// WithInvalidator registers the component notified on rule set changes.
func WithInvalidator(inv Invalidator) Option {
	return func(o *options) { o.invalidator = inv }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the time source used for created_at/updated_at.
func WithClock(c func() time.Time) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(prefix string, opts []Option) options {
	o := options{
		logger: log.New(io.Discard),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithPrefix(prefix)
	return o
}

func (o *options) invalidate() {
	if o.invalidator != nil {
		o.invalidator.InvalidateIndex()
	}
}

// validateRule checks field constraints and condition syntax.
func validateRule(r *types.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := rules.Parse(r.Condition); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidCondition, err)
	}
	return nil
}

// Fingerprint hashes every field of a rule set that affects evaluation, in
// order. Equal fingerprints mean an index built from one set is valid for
// the other.
func Fingerprint(ruleSet []*types.Rule) uint64 {
	d := xxhash.New()
	var buf []byte
	for _, r := range ruleSet {
		if r == nil {
			_, _ = d.WriteString("\x00nil\x00")
			continue
		}
		buf = buf[:0]
		buf = append(buf, string(r.ID)...)
		buf = append(buf, 0)
		buf = append(buf, r.Name...)
		buf = append(buf, 0)
		buf = append(buf, r.Condition...)
		buf = append(buf, 0)
		buf = append(buf, r.Behavior...)
		buf = append(buf, 0)
		buf = append(buf, r.Category...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, int64(r.Priority), 10)
		buf = append(buf, 0)
		buf = strconv.AppendUint(buf, math.Float64bits(r.Confidence), 16)
		buf = append(buf, 0)
		buf = strconv.AppendBool(buf, r.Active)
		buf = append(buf, 0)
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}
