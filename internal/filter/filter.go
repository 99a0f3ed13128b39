package filter

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain holds an ordered list of filter rules. The first matching rule
// decides; a path no rule matches is included.
type Chain struct {
	rules []Rule
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// FromExcludes builds a chain of exclude rules in the given order.
func FromExcludes(patterns []string) (*Chain, error) {
	c := NewChain()
	for _, p := range patterns {
		if err := c.AddExclude(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: false})
	return nil
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: true})
	return nil
}

// Concat returns a new chain with c's rules followed by other's.
func (c *Chain) Concat(other *Chain) *Chain {
	out := NewChain()
	if c != nil {
		out.rules = append(out.rules, c.rules...)
	}
	if other != nil {
		out.rules = append(out.rules, other.rules...)
	}
	return out
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return c == nil || len(c.rules) == 0
}

// Patterns returns the original pattern text of every rule, in order.
// Include rules are prefixed with "+ ".
func (c *Chain) Patterns() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		if r.Include {
			out = append(out, "+ "+r.Pattern.original)
			continue
		}
		out = append(out, r.Pattern.original)
	}
	return out
}

// Match returns true if the path should be INCLUDED (not filtered out).
// relPath is slash-separated and relative to the backup root. A nil chain
// includes everything.
func (c *Chain) Match(relPath string, isDir bool) bool {
	if c == nil {
		return true
	}
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}
	return true
}
