package admission

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/pkg/urlutil"
)

/*
Filter is the sole place recursion policy lives. Every discovered link goes
through Admit before it can reach Frontier.Submit - no other package decides
whether a URL is in scope, matches a recursion pattern, or escapes its
parent's subtree.

The eight steps always run in this fixed order:

 1. normalize (leading-slash rule, scheme defaulting)
 2. reject unsupported schemes
 3. skip if already seen
 4. recurse_pattern (include)
 5. recurse_ignore_pattern (exclude)
 6. no_parent
 7. domain scope
 8. submit at remaining_depth - 1

Normalization has to run before the seen-set can be consulted, since
"seen" is keyed on the normalized form, which is why the seen check and
the normalize/scheme-reject step are adjacent - a candidate that fails to
normalize was never going to be admitted regardless of seen-set state.
*/
type Filter struct {
	frontier *frontier.Frontier
	param    Param
}

func NewFilter(fr *frontier.Frontier, param Param) *Filter {
	return &Filter{frontier: fr, param: param}
}

// Admit runs the admission pipeline for one discovered link and, if every
// step passes, submits it to the Frontier directly. rawCandidate is the
// unresolved href/src text exactly as found on the page; parent is the page
// it was found on; remainingDepth is the parent's own remaining depth.
func (f *Filter) Admit(rawCandidate string, parent url.URL, remainingDepth int) bool {
	candidate, err := urlutil.Normalize(rawCandidate, &parent)
	if err != nil {
		return false
	}

	if f.frontier.Seen(*candidate) {
		return false
	}

	if len(f.param.RecursePattern) > 0 && !matchesAny(f.param.RecursePattern, candidate.Path) {
		return false
	}

	if matchesAny(f.param.RecurseIgnorePattern, candidate.Path) {
		return false
	}

	if f.param.NoParent && !underParent(candidate.Path, parent.Path) {
		return false
	}

	if !f.inScope(*candidate, parent) {
		return false
	}

	nextDepth := remainingDepth - 1
	return f.frontier.Submit(*candidate, &nextDepth)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// underParent reports whether childPath begins with parentPath's directory
// (parentPath with any trailing slashes trimmed, plus exactly one "/").
func underParent(childPath, parentPath string) bool {
	prefix := strings.TrimRight(parentPath, "/") + "/"
	return strings.HasPrefix(childPath, prefix)
}

// inScope implements domain-scope admission: cross_domains accepts
// everything, an explicit domains list accepts itself plus the parent's
// own host, and the default is same-host-as-parent only.
func (f *Filter) inScope(candidate, parent url.URL) bool {
	if f.param.CrossDomains {
		return true
	}
	if len(f.param.Domains) > 0 {
		return f.param.Domains[candidate.Host] || candidate.Host == parent.Host
	}
	return candidate.Host == parent.Host
}
