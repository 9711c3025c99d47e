package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

// ruleFile is the on-disk layout:
//
//	rules:
//	  - id: block-exe
//	    name: Block executables
//	    condition: "file.extension == '.exe'"
//	    behavior: deny
//	    priority: 90
//	    confidence: 0.95
type ruleFile struct {
	Rules []fileRule `yaml:"rules"`
}

// fileRule uses pointers so omitted fields get defaults rather than zero values.
type fileRule struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Condition  string   `yaml:"condition"`
	Behavior   string   `yaml:"behavior"`
	Category   string   `yaml:"category"`
	Priority   *int     `yaml:"priority"`
	Confidence *float64 `yaml:"confidence"`
	Active     *bool    `yaml:"active"`
}

func (fr fileRule) toRule() *types.Rule {
	rule := &types.Rule{
		ID:         types.RuleID(fr.ID),
		Name:       fr.Name,
		Condition:  fr.Condition,
		Behavior:   fr.Behavior,
		Category:   fr.Category,
		Priority:   DefaultPriority,
		Confidence: DefaultConfidence,
		Active:     true,
	}
	if rule.ID == "" {
		rule.ID = types.RuleID(fr.Name)
	}
	if rule.Category == "" {
		rule.Category = DefaultCategory
	}
	if fr.Priority != nil {
		rule.Priority = *fr.Priority
	}
	if fr.Confidence != nil {
		rule.Confidence = *fr.Confidence
	}
	if fr.Active != nil {
		rule.Active = *fr.Active
	}
	return rule
}

// ParseRules decodes and validates a YAML rule document. The whole document
// is rejected if any rule is invalid or two rules share an ID or name.
func ParseRules(data []byte) ([]*types.Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	ruleSet := make([]*types.Rule, 0, len(doc.Rules))
	ids := make(map[types.RuleID]bool, len(doc.Rules))
	names := make(map[string]bool, len(doc.Rules))
	for i, fr := range doc.Rules {
		rule := fr.toRule()
		if err := validateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, rule.Name, err)
		}
		if ids[rule.ID] {
			return nil, fmt.Errorf("rule %d (%q): %w: id %s", i, rule.Name, types.ErrDuplicateRule, rule.ID)
		}
		if names[rule.Name] {
			return nil, fmt.Errorf("rule %d (%q): %w: name", i, rule.Name, types.ErrDuplicateRule)
		}
		ids[rule.ID] = true
		names[rule.Name] = true
		ruleSet = append(ruleSet, rule)
	}
	return ruleSet, nil
}

// LoadRuleFile reads and parses a YAML rule file.
func LoadRuleFile(path string) ([]*types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %q: %w", path, err)
	}
	return ParseRules(data)
}

// FileSource serves rules from a YAML file. It implements rules.RuleSource.
// The rule set only changes through Reload; a failed reload keeps the
// previous rules.
type FileSource struct {
	path string
	opts options

	mu          sync.RWMutex
	ruleSet     []*types.Rule
	fingerprint uint64
	loaded      bool
}

// NewFileSource creates a source for path. Nothing is read until the first
// Reload or ListRules.
func NewFileSource(path string, opts ...Option) *FileSource {
	return &FileSource{
		path: path,
		opts: buildOptions("rules-file", opts),
	}
}

// Path returns the watched rule file path.
func (s *FileSource) Path() string {
	return s.path
}

// ListRules returns the current rule set, loading the file on first use.
func (s *FileSource) ListRules(ctx context.Context) ([]*types.Rule, error) {
	s.mu.RLock()
	loaded := s.loaded
	ruleSet := s.ruleSet
	s.mu.RUnlock()

	if !loaded {
		if _, err := s.Reload(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		ruleSet = s.ruleSet
		s.mu.RUnlock()
	}

	out := make([]*types.Rule, len(ruleSet))
	copy(out, ruleSet)
	return out, nil
}

// Reload re-reads the file. It reports whether the rule set changed; an
// unchanged file (same content fingerprint) does not invalidate the index.
func (s *FileSource) Reload(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to read rule file %q: %w", s.path, err)
	}
	sum := xxhash.Sum64(data)

	s.mu.RLock()
	unchanged := s.loaded && sum == s.fingerprint
	s.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	ruleSet, err := ParseRules(data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.path, err)
	}

	s.mu.Lock()
	s.ruleSet = ruleSet
	s.fingerprint = sum
	s.loaded = true
	s.mu.Unlock()

	s.opts.logger.Info("loaded rules", "path", s.path, "rules", len(ruleSet), "fingerprint", fmt.Sprintf("%016x", sum))
	s.opts.invalidate()
	return true, nil
}

// Fingerprint returns the xxhash of the loaded file content, 0 before the
// first successful load.
func (s *FileSource) Fingerprint() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}
