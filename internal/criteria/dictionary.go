// Package criteria implements the trial eligibility criteria parser (C3):
// turning raw eligibility text into a structured, cacheable ParsedCriteria,
// grounded on the synonym-dictionary technique of the original prototype's
// condition_normalizer.py / biomarker_normalizer.py.
package criteria

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// biomarkerSuffixes are the key suffixes that mark a synonym-dictionary
// entry as a biomarker or lab key rather than a disease condition, per
// spec §6.
var biomarkerSuffixes = []string{
	"_Gene", "_Receptor", "_Marker", "_Status", "_Mutation", "_Score", "_Level", "_Count",
}

// IsBiomarkerKey reports whether key carries one of the recognized
// biomarker/lab suffixes.
func IsBiomarkerKey(key string) bool {
	for _, suf := range biomarkerSuffixes {
		if strings.HasSuffix(key, suf) {
			return true
		}
	}
	return false
}

// CleanBiomarkerName strips a biomarker key's suffix, e.g.
// "EGFR_Gene" -> "EGFR".
func CleanBiomarkerName(key string) string {
	for _, suf := range biomarkerSuffixes {
		if strings.HasSuffix(key, suf) {
			return strings.TrimSuffix(key, suf)
		}
	}
	return key
}

// term is one compiled surface-form matcher for a dictionary key.
type term struct {
	key string
	re  *regexp.Regexp
}

// Dictionary is the loaded, compiled synonym table: canonical key ->
// surface forms, with word-boundary matchers precompiled once at load
// time rather than per-parse, the way the Python prototype rebuilds its
// reverse lookup once at construction.
type Dictionary struct {
	raw           map[string][]string
	conditionTerms []term
	biomarkerTerms []term
	labTerms       map[string][]term // canonical lab key -> surface-form matchers
	reverse        map[string]string // lower-cased surface form -> canonical key, for Normalize
}

// LoadDictionary reads a JSON file mapping canonical keys to lists of
// surface forms (spec §6) and compiles it into a Dictionary.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonym dictionary %s: %w", path, err)
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse synonym dictionary %s: %w", path, err)
	}
	return NewDictionary(raw), nil
}

// NewDictionary compiles an in-memory synonym map into a Dictionary,
// separating condition keys from biomarker/lab keys by suffix.
func NewDictionary(raw map[string][]string) *Dictionary {
	d := &Dictionary{
		raw:     raw,
		labTerms: map[string][]term{},
		reverse:  map[string]string{},
	}
	for key, forms := range raw {
		isBiomarker := IsBiomarkerKey(key)
		for _, form := range forms {
			lower := strings.ToLower(form)
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(lower) + `\b`)
			t := term{key: key, re: re}
			if isBiomarker {
				d.biomarkerTerms = append(d.biomarkerTerms, t)
				d.labTerms[key] = append(d.labTerms[key], t)
			} else {
				d.conditionTerms = append(d.conditionTerms, t)
			}
			if _, exists := d.reverse[lower]; !exists {
				d.reverse[lower] = key
			}
		}
	}
	return d
}

// MatchConditions returns every canonical condition key whose surface
// form appears in text (word-boundary match), scanning only the
// non-biomarker dictionary entries.
func (d *Dictionary) MatchConditions(text string) map[string]struct{} {
	return matchTerms(d.conditionTerms, text)
}

// MatchBiomarkers returns every canonical biomarker/lab key (with its
// suffix still attached) whose surface form appears in text.
func (d *Dictionary) MatchBiomarkers(text string) map[string]struct{} {
	return matchTerms(d.biomarkerTerms, text)
}

// LabSurfaceForms returns the compiled surface-form matchers for a
// specific lab key, or nil if the dictionary carries none.
func (d *Dictionary) LabSurfaceForms(labKey string) []term {
	return d.labTerms[labKey]
}

// Normalize maps a free-form string to its canonical dictionary key,
// case-insensitively, falling back to the original string (trimmed) if
// no mapping exists — per spec §4.5 step 1, "keep originals if no
// mapping."
func (d *Dictionary) Normalize(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	if key, ok := d.reverse[lower]; ok {
		return key
	}
	return strings.TrimSpace(s)
}

// NormalizeAll normalizes every element of in, preserving order.
func (d *Dictionary) NormalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = d.Normalize(s)
	}
	return out
}

func matchTerms(terms []term, text string) map[string]struct{} {
	found := map[string]struct{}{}
	for _, t := range terms {
		if _, already := found[t.key]; already {
			continue
		}
		if t.re.MatchString(text) {
			found[t.key] = struct{}{}
		}
	}
	return found
}
