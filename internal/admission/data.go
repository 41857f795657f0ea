package admission

import "regexp"

// Param carries the compiled recursion-policy configuration for one crawl
// run. Patterns are anchored-at-start (re.match semantics) by
// CompileAnchored, not by the caller - Admit itself never compiles a regexp.
type Param struct {
	RecursePattern       []*regexp.Regexp
	RecurseIgnorePattern []*regexp.Regexp
	NoParent             bool
	CrossDomains         bool
	// Domains is the configured domain allowlist. An empty map means
	// "same-host only".
	Domains map[string]bool
}

// CompileAnchored compiles each pattern with an implicit start anchor, since
// Go's regexp.MatchString matches anywhere in the string while
// recurse_pattern/recurse_ignore_pattern follow Python's re.match
// semantics (anchored at position 0 only). This is the only place in the
// package that calls regexp.Compile - everything downstream works with
// compiled *Regexp.
func CompileAnchored(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`\A(?:` + p + `)`)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// DomainSet builds the Domains lookup map Param expects from a configured
// domains list.
func DomainSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[d] = true
	}
	return set
}
