// Package patterns mines reviewer decisions for reusable matching rules.
// Decisions are grouped by transformation signature: a label for the
// punctuation/structural edit separating two equivalent part numbers.
package patterns

import (
	"sort"
	"strings"

	"github.com/gearline/partmatch/pkg/normalize"
)

// Structural signature labels. Punctuation edits get specific labels such as
// "remove_dash" or "dash_to_slash", built by punctuationSignature. Signatures
// are computed, never stored as ground truth; they only serve as grouping
// keys for rule mining.
const (
	SignatureIdentical        = "identical"
	SignatureStripPunctuation = "strip_punctuation"
	SignatureLineCodeStripped = "line_code_stripped"
	SignatureLeadingZeros     = "leading_zeros"
	SignatureUnknown          = "unknown"
)

// Signature derives the order-independent transformation label between a
// store and a supplier part number. Order independence: Signature(a, b) ==
// Signature(b, a) for every label this package emits.
func Signature(storeNumber, supplierNumber string) string {
	a := strings.TrimSpace(storeNumber)
	b := strings.TrimSpace(supplierNumber)
	if a == b {
		return SignatureIdentical
	}

	ca := normalize.Canonicalize(a)
	cb := normalize.Canonicalize(b)

	if ca == cb && ca != "" {
		if alphanumOnly(a) == alphanumOnly(b) {
			// Purely cosmetic difference: name the punctuation edit
			return punctuationSignature(a, b)
		}
	}

	// Leading zeros: equal after zero-trim of the un-trimmed alphanumeric forms
	ra := alphanumOnly(a)
	rb := alphanumOnly(b)
	if ra != rb && strings.TrimLeft(ra, "0") == strings.TrimLeft(rb, "0") {
		return SignatureLeadingZeros
	}

	// Line code stripped on either side
	if la, _, ok := normalize.SplitLineCode(a); ok {
		if normalize.Canonicalize(strings.TrimPrefix(ra, la)) == cb && cb != "" {
			return SignatureLineCodeStripped
		}
	}
	if lb, _, ok := normalize.SplitLineCode(b); ok {
		if normalize.Canonicalize(strings.TrimPrefix(rb, lb)) == ca && ca != "" {
			return SignatureLineCodeStripped
		}
	}

	return SignatureUnknown
}

// punctuationSignature labels a cosmetic edit between two strings that share
// the same alphanumeric skeleton. One-sided punctuation yields "remove_dash",
// "remove_dot" and the like; a substitution yields the two punctuation names
// joined in sorted order ("dash_to_slash" whichever direction the pair is
// passed in); anything messier collapses to strip_punctuation.
func punctuationSignature(a, b string) string {
	pa := punctKinds(a)
	pb := punctKinds(b)

	switch {
	case len(pa) == 0 && len(pb) == 0:
		return SignatureIdentical
	case len(pa) == 1 && len(pb) == 0:
		return "remove_" + pa[0]
	case len(pb) == 1 && len(pa) == 0:
		return "remove_" + pb[0]
	case len(pa) == 1 && len(pb) == 1 && pa[0] != pb[0]:
		names := []string{pa[0], pb[0]}
		sort.Strings(names)
		return names[0] + "_to_" + names[1]
	default:
		return SignatureStripPunctuation
	}
}

// punctKinds returns the sorted set of punctuation kind names in s
func punctKinds(s string) []string {
	set := make(map[string]struct{})
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			continue
		case r == '-':
			set["dash"] = struct{}{}
		case r == '.':
			set["dot"] = struct{}{}
		case r == '/':
			set["slash"] = struct{}{}
		case r == ' ':
			set["space"] = struct{}{}
		default:
			set["other"] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// alphanumOnly upper-cases and keeps [A-Z0-9] without trimming zeros
func alphanumOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
