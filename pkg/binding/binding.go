// Package binding maps change records to UI-refresh effects and
// fetch-method effects.
//
// Binding keys are either literal dot-paths or patterns. A key wrapped in
// slashes ("/^person\\./") is compiled as a regular expression once, at
// table construction; everything else compares literally against a change
// record's path.
package binding

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-mosaic/mosaic/pkg/errors"
	"github.com/go-mosaic/mosaic/pkg/observe"
)

// Key is a compiled binding key: a literal path or a pattern.
type Key struct {
	literal string
	pattern *regexp.Regexp
}

// CompileKey resolves the literal-or-pattern form of a binding key.
func CompileKey(raw string) (Key, error) {
	if len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		re, err := regexp.Compile(raw[1 : len(raw)-1])
		if err != nil {
			return Key{}, errors.Newf("binding.CompileKey", errors.KindConfig, "invalid pattern %q: %v", raw, err)
		}
		return Key{pattern: re}, nil
	}
	return Key{literal: raw}, nil
}

// Matches reports whether the key applies to a change record path.
func (k Key) Matches(path string) bool {
	if k.pattern != nil {
		return k.pattern.MatchString(path)
	}
	return k.literal == path
}

func (k Key) String() string {
	if k.pattern != nil {
		return "/" + k.pattern.String() + "/"
	}
	return k.literal
}

// UIBinding declares the refresh effect of mutations at a path. Full takes
// precedence over Selectors.
type UIBinding struct {
	Path      string
	Full      bool
	Selectors []string
}

// DataBinding declares the fetch effect of mutations at a path.
type DataBinding struct {
	Path         string
	Methods      []string
	DelayRefresh bool
}

type uiRule struct {
	key       Key
	full      bool
	selectors []string
}

type dataRule struct {
	key          Key
	methods      []string
	delayRefresh bool
}

// UITable holds compiled UI bindings in declaration order.
type UITable struct {
	rules []uiRule
}

// CompileUI builds a UI binding table, compiling each key once.
func CompileUI(bindings []UIBinding) (*UITable, error) {
	t := &UITable{}
	for _, b := range bindings {
		key, err := CompileKey(b.Path)
		if err != nil {
			return nil, err
		}
		if !b.Full && len(b.Selectors) == 0 {
			return nil, errors.Newf("binding.CompileUI", errors.KindConfig,
				"binding %q declares neither a full refresh nor selectors", b.Path)
		}
		t.rules = append(t.rules, uiRule{key: key, full: b.Full, selectors: b.Selectors})
	}
	return t, nil
}

// Resolve folds a batch of change records into the refresh state. Once a
// full refresh is set, remaining selector matches in the pass are skipped.
func (t *UITable) Resolve(changes []observe.Change, state *RefreshState) {
	if t == nil || state == nil {
		return
	}
	for _, change := range changes {
		for _, rule := range t.rules {
			if !rule.key.Matches(change.Path) {
				continue
			}
			if rule.full {
				state.MarkFull()
				return
			}
			state.Add(rule.selectors...)
		}
	}
}

// DataTable holds compiled data bindings in declaration order.
type DataTable struct {
	rules []dataRule
}

// CompileData builds a data binding table, compiling each key once.
func CompileData(bindings []DataBinding) (*DataTable, error) {
	t := &DataTable{}
	for _, b := range bindings {
		key, err := CompileKey(b.Path)
		if err != nil {
			return nil, err
		}
		if len(b.Methods) == 0 {
			return nil, errors.Newf("binding.CompileData", errors.KindConfig,
				"binding %q declares no fetch methods", b.Path)
		}
		t.rules = append(t.rules, dataRule{key: key, methods: b.Methods, delayRefresh: b.DelayRefresh})
	}
	return t, nil
}

// MethodNames returns every method referenced by the table, for
// construction-time validation.
func (t *DataTable) MethodNames() []string {
	if t == nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, rule := range t.rules {
		for _, m := range rule.methods {
			if !seen[m] {
				seen[m] = true
				names = append(names, m)
			}
		}
	}
	return names
}

// Plan is the aggregate fetch effect of one change batch.
type Plan struct {
	// Delay gates rendering until the triggered methods complete.
	Delay bool
	// Methods to invoke as fetch tasks, deduplicated in first-match order.
	Methods []string
}

// Resolve folds a batch of change records into a fetch plan. Delay is the
// OR-reduction of every matching binding's DelayRefresh flag.
func (t *DataTable) Resolve(changes []observe.Change) Plan {
	var plan Plan
	if t == nil {
		return plan
	}
	seen := map[string]bool{}
	for _, change := range changes {
		for _, rule := range t.rules {
			if !rule.key.Matches(change.Path) {
				continue
			}
			plan.Delay = plan.Delay || rule.delayRefresh
			for _, m := range rule.methods {
				if !seen[m] {
					seen[m] = true
					plan.Methods = append(plan.Methods, m)
				}
			}
		}
	}
	return plan
}

// RefreshState is the pending refresh effect of an instance: empty, a
// non-empty ordered selector set (partial), or full. Once full it stays
// full until consumed by a render pass.
type RefreshState struct {
	full      bool
	selectors []string
}

// MarkFull escalates the state to a full refresh.
func (s *RefreshState) MarkFull() {
	s.full = true
	s.selectors = nil
}

// Add appends partial-refresh selectors. Ignored once the state is full.
func (s *RefreshState) Add(selectors ...string) {
	if s.full {
		return
	}
	s.selectors = append(s.selectors, selectors...)
}

// Empty reports whether no refresh is pending.
func (s *RefreshState) Empty() bool {
	return !s.full && len(s.selectors) == 0
}

// Full reports whether a full refresh is pending.
func (s *RefreshState) Full() bool {
	return s.full
}

// Selectors returns the pending selector set, deduplicated in first-seen
// order.
func (s *RefreshState) Selectors() []string {
	seen := map[string]bool{}
	var out []string
	for _, sel := range s.selectors {
		if !seen[sel] {
			seen[sel] = true
			out = append(out, sel)
		}
	}
	return out
}

// Clear resets the state to empty. Called when a render pass consumes it.
func (s *RefreshState) Clear() {
	s.full = false
	s.selectors = nil
}

func (s *RefreshState) String() string {
	if s.full {
		return "full"
	}
	if len(s.selectors) == 0 {
		return "empty"
	}
	return fmt.Sprintf("partial%v", s.Selectors())
}
