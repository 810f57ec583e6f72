package consolidate

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TopicRules is the pluggable normalization strategy behind topic inference.
// Stopwords remove agent phrasing; synonym folds map near-duplicate wording
// ("MRR/ARR mismatch", "ARR inconsistency") onto one token set.
type TopicRules struct {
	Stopwords []string          `yaml:"stopwords"`
	Synonyms  map[string]string `yaml:"synonyms"`

	stopset map[string]bool
}

// DefaultTopicRules returns the built-in normalization rules.
func DefaultTopicRules() *TopicRules {
	r := &TopicRules{
		Stopwords: []string{
			"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
			"from", "has", "have", "in", "is", "it", "of", "on", "or", "our",
			"that", "the", "their", "this", "to", "with",
			// agent phrasing
			"potential", "possible", "possibly", "apparent", "likely",
			"risk", "risks", "issue", "issues", "concern", "concerns",
			"warning", "warnings", "flag", "flags", "red",
			"detected", "identified", "found", "noted", "observed",
			"significant", "serious", "major",
		},
		Synonyms: map[string]string{
			"mrr":           "arr",
			"revenues":      "revenue",
			"inconsistency": "mismatch",
			"inconsistent":  "mismatch",
			"discrepancy":   "mismatch",
			"discrepancies": "mismatch",
			"conflict":      "mismatch",
			"conflicting":   "mismatch",
			"contradiction": "mismatch",
			"mismatched":    "mismatch",
			"founders":      "founder",
			"customers":     "customer",
			"competitors":   "competitor",
			"churned":       "churn",
			"attrition":     "churn",
			"lawsuits":      "lawsuit",
			"litigation":    "lawsuit",
			"runways":       "runway",
			"valuations":    "valuation",
		},
	}
	r.compile()
	return r
}

// LoadTopicRules reads extra rules from a YAML file and merges them over the
// defaults.
func LoadTopicRules(path string) (*TopicRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "consolidate: read rules %s", path)
	}
	var extra TopicRules
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, eris.Wrap(err, "consolidate: parse rules")
	}

	r := DefaultTopicRules()
	r.Stopwords = append(r.Stopwords, extra.Stopwords...)
	for from, to := range extra.Synonyms {
		r.Synonyms[strings.ToLower(from)] = strings.ToLower(to)
	}
	r.compile()
	return r, nil
}

func (r *TopicRules) compile() {
	r.stopset = make(map[string]bool, len(r.Stopwords))
	for _, w := range r.Stopwords {
		r.stopset[strings.ToLower(w)] = true
	}
}

// Infer computes the canonical topic key for a raw flag title within a
// category. Titles that normalize to the same token set share a topic.
func (r *TopicRules) Infer(title, category string) string {
	tokens := tokenize(title)

	seen := make(map[string]bool, len(tokens))
	var kept []string
	for _, tok := range tokens {
		if r.stopset[tok] {
			continue
		}
		if folded, ok := r.Synonyms[tok]; ok {
			tok = folded
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		kept = append(kept, tok)
	}
	sort.Strings(kept)

	prefix := strings.ToLower(strings.TrimSpace(category))
	if prefix == "" {
		prefix = "general"
	}
	if len(kept) == 0 {
		// Degenerate title; fall back to its raw normalized form.
		kept = tokens
	}
	return prefix + ":" + strings.Join(kept, "-")
}

func tokenize(s string) []string {
	lower := strings.ToLower(s)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
