package download

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/glorpus-work/porter/pkg/errors"
)

// Filters narrow a candidate asset list. Regex filters take precedence over
// glob filters; match/exclude keywords always apply as a secondary narrowing.
type Filters struct {
	Regexes         []string
	Globs           []string
	MatchKeywords   []string
	ExcludeKeywords []string
	// ExactCase makes regex, glob and keyword matching case sensitive.
	ExactCase bool
}

// Empty reports whether no filter is configured.
func (f Filters) Empty() bool {
	return len(f.Regexes) == 0 && len(f.Globs) == 0 &&
		len(f.MatchKeywords) == 0 && len(f.ExcludeKeywords) == 0
}

// Apply narrows assets through the filter pipeline: regex filters (or glob
// filters when no regex is given), then match keywords, then exclude
// keywords. The input order is preserved.
func (f Filters) Apply(assets []Asset) ([]Asset, error) {
	out := assets

	switch {
	case len(f.Regexes) > 0:
		patterns := make([]*regexp.Regexp, 0, len(f.Regexes))
		for _, expr := range f.Regexes {
			if !f.ExactCase {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrNoMatchingAsset, "invalid regex filter %q: %v", expr, err)
			}
			patterns = append(patterns, re)
		}
		out = keep(out, func(name string) bool {
			for _, re := range patterns {
				if re.MatchString(name) {
					return true
				}
			}
			return false
		})
	case len(f.Globs) > 0:
		globs := make([]glob.Glob, 0, len(f.Globs))
		for _, pattern := range f.Globs {
			if !f.ExactCase {
				pattern = strings.ToLower(pattern)
			}
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrNoMatchingAsset, "invalid glob filter %q: %v", pattern, err)
			}
			globs = append(globs, g)
		}
		out = keep(out, func(name string) bool {
			if !f.ExactCase {
				name = strings.ToLower(name)
			}
			for _, g := range globs {
				if g.Match(name) {
					return true
				}
			}
			return false
		})
	}

	if len(f.MatchKeywords) > 0 {
		out = keep(out, func(name string) bool {
			for _, kw := range f.MatchKeywords {
				if f.contains(name, kw) {
					return true
				}
			}
			return false
		})
	}
	if len(f.ExcludeKeywords) > 0 {
		out = keep(out, func(name string) bool {
			for _, kw := range f.ExcludeKeywords {
				if f.contains(name, kw) {
					return false
				}
			}
			return true
		})
	}
	return out, nil
}

func (f Filters) contains(name, keyword string) bool {
	if f.ExactCase {
		return strings.Contains(name, keyword)
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(keyword))
}

func keep(assets []Asset, pred func(name string) bool) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if pred(a.Name) {
			out = append(out, a)
		}
	}
	return out
}

// Select applies the filters and picks the asset to download. Exactly one
// remaining candidate is selected automatically; more than one requires the
// caller to allow interactive disambiguation, otherwise selection fails.
func Select(assets []Asset, filters Filters, allowPrompt bool, choose func([]Asset) (Asset, error)) (Asset, error) {
	narrowed, err := filters.Apply(assets)
	if err != nil {
		return Asset{}, err
	}
	switch {
	case len(narrowed) == 0:
		return Asset{}, errors.Wrapf(errors.ErrNoMatchingAsset, "%d candidates, none matched", len(assets))
	case len(narrowed) == 1:
		return narrowed[0], nil
	case allowPrompt && choose != nil:
		return choose(narrowed)
	default:
		names := make([]string, len(narrowed))
		for i, a := range narrowed {
			names[i] = a.Name
		}
		return Asset{}, errors.Wrapf(errors.ErrAmbiguousSelection, "candidates: %s", strings.Join(names, ", "))
	}
}
