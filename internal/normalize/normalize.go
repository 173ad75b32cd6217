package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// SkillKey returns the case-insensitive match key for a skill name. Two
// postings match only when their keys are equal; inner whitespace runs are
// collapsed so "Jazz  Guitar" and "jazz guitar" compare equal.
func SkillKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// PairKey returns an order-independent key for two ids. It is used both for
// the pending-match uniqueness index and for chat room names, so the key is
// the same no matter which side computes it.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
