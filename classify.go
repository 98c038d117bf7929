package provbatch

import "strings"

// Class is the retry-relevant classification of a single step attempt.
type Class int

const (
	// ClassOK marks an attempt that produced no recognizable error.
	ClassOK Class = iota
	// ClassTransient marks an error that may resolve on a later attempt.
	ClassTransient
	// ClassFatal marks a condition that no amount of retrying can change.
	ClassFatal
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Rule maps a provider output marker to a classification. Markers are
// matched case-insensitively as substrings of the captured output.
type Rule struct {
	Marker string
	Class  Class
}

// Classifier turns raw provider output into a Class by walking an ordered
// rule list. It is the single place where output-based error detection
// happens, so the matching strategy can be swapped without touching the
// retry control flow.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a Classifier over the given rules. Rules are
// evaluated in order; the first match wins.
func NewClassifier(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, len(rules))}
	copy(c.rules, rules)
	return c
}

// Classify inspects the captured output and the call error of one attempt.
// Output markers take precedence over the error value: providers are known
// to report success exit codes alongside embedded error text, and equally to
// report rich error text that carries the actual classification.
func (c *Classifier) Classify(output string, err error) Class {
	lower := strings.ToLower(output)
	for _, r := range c.rules {
		if strings.Contains(lower, strings.ToLower(r.Marker)) {
			return r.Class
		}
	}
	if err != nil {
		return ClassTransient
	}
	return ClassOK
}

// DefaultClassifier returns the canonical rule set. Permission, quota,
// billing, and already-exists conditions are fatal: retrying cannot change
// them within a run. Any other marked error is considered transient.
func DefaultClassifier() *Classifier {
	return NewClassifier([]Rule{
		{Marker: "permission denied", Class: ClassFatal},
		{Marker: "permission_denied", Class: ClassFatal},
		{Marker: "quota exceeded", Class: ClassFatal},
		{Marker: "resource_exhausted", Class: ClassFatal},
		{Marker: "billing account", Class: ClassFatal},
		{Marker: "billing is not enabled", Class: ClassFatal},
		{Marker: "already exists", Class: ClassFatal},
		{Marker: "alreadyexists", Class: ClassFatal},
		{Marker: "error", Class: ClassTransient},
	})
}
