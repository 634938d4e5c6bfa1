package criteria

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/clinical-trials-core/internal/core"
)

// TrialMetadata is the structured override data a trial record may carry
// alongside its raw eligibility text, per spec §4.3 step 3.
type TrialMetadata struct {
	MinAgeYears    *float64
	MaxAgeYears    *float64
	Sex            core.Sex
	Conditions     []string
	ConditionsCUIs []string
}

// Parser extracts a ParsedCriteria from raw eligibility text, grounded
// directly on the original prototype's CriteriaParser (criteria_parser.py):
// the same regex-per-field technique, generalized to the fuller exclusion
// flag set spec.md requires and the disjointness/override rules the
// prototype never implemented.
type Parser struct {
	dict   *Dictionary
	logger zerolog.Logger
	cache  *lru.Cache[string, *core.ParsedCriteria]
}

// NewParser builds a Parser around dict. cacheSize bounds the on-the-fly
// parse cache (spec §9 Design Notes); a non-positive size disables
// caching entirely.
func NewParser(dict *Dictionary, logger zerolog.Logger, cacheSize int) *Parser {
	p := &Parser{dict: dict, logger: logger}
	if cacheSize > 0 {
		c, err := lru.New[string, *core.ParsedCriteria](cacheSize)
		if err == nil {
			p.cache = c
		}
	}
	return p
}

// CacheKey returns the key the on-the-fly parse cache uses for a given
// text and metadata fingerprint. Parse derives every cache lookup and
// insert from it.
func CacheKey(text string, meta TrialMetadata) string {
	var minAge, maxAge float64 = -1, -1
	if meta.MinAgeYears != nil {
		minAge = *meta.MinAgeYears
	}
	if meta.MaxAgeYears != nil {
		maxAge = *meta.MaxAgeYears
	}
	return fmt.Sprintf("%d:%s|min=%v|max=%v|sex=%s|cond=%s|cuis=%s",
		len(text), text,
		minAge, maxAge, meta.Sex,
		strings.Join(meta.Conditions, ","),
		strings.Join(meta.ConditionsCUIs, ","))
}

// Parse runs the full extraction pipeline on eligibility_text and applies
// metadata overrides, per spec §4.3 steps 1-4. Parse is pure given
// (text, metadata, dictionary) — it has no side effect beyond its own
// bounded LRU cache.
func (p *Parser) Parse(ctx context.Context, text string, meta TrialMetadata) (*core.ParsedCriteria, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapCancellation(ctx, err)
	}

	key := CacheKey(text, meta)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			return cached, nil
		}
	}

	result := p.parse(text, meta)

	if p.cache != nil {
		p.cache.Add(key, result)
	}
	return result, nil
}

func (p *Parser) parse(text string, meta TrialMetadata) *core.ParsedCriteria {
	pc := core.NewParsedCriteria()
	if text == "" {
		p.applyOverrides(pc, meta)
		return pc
	}

	lower := strings.ToLower(text)
	inclusion, exclusion := core.SplitEligibility(lower)

	lo, hi := extractAge(lower)
	pc.AgeMin, pc.AgeMax = lo, hi
	pc.Sex = extractSex(lower)
	pc.ECOGAllowed = extractECOG(lower)
	pc.Labs = p.extractLabs(lower)
	pc.Temporal = extractTemporal(lower)
	pc.LinesOfTherapy = extractLines(lower)
	pc.Exclusions = extractExclusions(lower)

	for key := range p.dict.MatchConditions(inclusion) {
		pc.Conditions[key] = struct{}{}
	}
	// Conditions named only in the exclusion half are evidence against
	// the patient having that condition as an inclusion target, not an
	// inclusion themselves — spec §4.3 step 1 only feeds the inclusion
	// half to condition extraction.
	_ = exclusion

	for key := range p.dict.MatchBiomarkers(lower) {
		pc.Biomarkers[key] = struct{}{}
	}

	p.applyOverrides(pc, meta)

	// Step 4: enforce disjointness between conditions and exclusions.
	for flag := range pc.Exclusions {
		delete(pc.Conditions, string(flag))
	}

	return pc
}

func (p *Parser) applyOverrides(pc *core.ParsedCriteria, meta TrialMetadata) {
	if meta.MinAgeYears != nil {
		pc.AgeMin = *meta.MinAgeYears
	}
	if meta.MaxAgeYears != nil {
		pc.AgeMax = *meta.MaxAgeYears
	}
	if meta.Sex != core.SexUnknown {
		pc.Sex = meta.Sex
	}
	for _, c := range meta.Conditions {
		canon := p.dict.Normalize(c)
		pc.Conditions[canon] = struct{}{}
	}
	for _, cui := range meta.ConditionsCUIs {
		pc.ConditionsCUIs[cui] = struct{}{}
	}
}

var (
	ageMinRe = regexp.MustCompile(`(?:≥|>=|at least|age)\s*:?\s*(\d{1,3})\s*(?:years|yrs|y\.o\.|yo)\b`)
	ageMaxRe = regexp.MustCompile(`(?:≤|<=|up to|younger than)\s*:?\s*(\d{1,3})\s*(?:years|yrs|y\.o\.|yo)\b`)
)

// extractAge ports _extract_age: min/max patterns bound to the recognized
// age units, clamped to [0, 120]; if min > max, max is discarded back to
// the default upper bound per spec §4.3 step 2.
func extractAge(text string) (float64, float64) {
	min, max := 0.0, 120.0
	if m := ageMinRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			min = float64(v)
		}
	}
	if m := ageMaxRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			max = float64(v)
		}
	}
	if min > 120 {
		min = 120
	}
	if max > 120 {
		max = 120
	}
	if min > max {
		max = 120
	}
	return min, max
}

var (
	femaleRe = regexp.MustCompile(`\b(women|female|females)\b`)
	maleRe   = regexp.MustCompile(`\b(men|male|males)\b`)
)

// extractSex ports _extract_gender: disjoint detection of female/male
// tokens; both present (or neither) yields All per spec §4.3 step 2.
func extractSex(text string) core.Sex {
	hasFemale := femaleRe.MatchString(text)
	hasMale := maleRe.MatchString(text)
	switch {
	case hasFemale && !hasMale:
		return core.SexFemale
	case hasMale && !hasFemale:
		return core.SexMale
	default:
		return core.SexAll
	}
}

var (
	ecogRangeRe  = regexp.MustCompile(`(?:ecog|zubrod|who).*?status.*?(\d)\s*(?:-|to)\s*(\d)`)
	ecogLTERe    = regexp.MustCompile(`(?:ecog|zubrod|who).*?(?:≤|<=|up to|less than).*?(\d)`)
	ecogSimpleRe = regexp.MustCompile(`(?:ecog|zubrod|who).*?(\d)(?:\s*or\s*|\s*,\s*)(\d)`)
)

// extractECOG ports _extract_ecog's three-pattern union, limited to
// 0-5 per spec §4.3 step 2.
func extractECOG(text string) map[int]struct{} {
	allowed := map[int]struct{}{}
	if m := ecogRangeRe.FindStringSubmatch(text); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if start <= end && end <= 5 {
			for i := start; i <= end; i++ {
				allowed[i] = struct{}{}
			}
		}
	}
	if m := ecogLTERe.FindStringSubmatch(text); m != nil {
		limit, _ := strconv.Atoi(m[1])
		if limit <= 5 {
			for i := 0; i <= limit; i++ {
				allowed[i] = struct{}{}
			}
		}
	}
	if len(allowed) == 0 {
		if m := ecogSimpleRe.FindStringSubmatch(text); m != nil {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			if a <= 5 {
				allowed[a] = struct{}{}
			}
			if b <= 5 {
				allowed[b] = struct{}{}
			}
		}
	}
	return allowed
}

var labOpValueRe = regexp.MustCompile(`(>|>=|<|<=|≥|≤|greater than|less than|equals|up to)\s*(\d+(?:\.\d+)?)\s*([a-z/]+)?`)

// extractLabs ports _extract_labs: for each lab surface form found in the
// dictionary, search within a short trailing window for an operator and
// value, normalizing the operator to the canonical five-symbol set per
// spec §4.3 step 2.
func (p *Parser) extractLabs(text string) map[string]core.LabRule {
	labs := map[string]core.LabRule{}
	for key, terms := range p.dict.labTerms {
		if !IsBiomarkerKey(key) || !strings.HasSuffix(key, "_Level") {
			continue
		}
		cleanName := CleanBiomarkerName(key)
		for _, t := range terms {
			loc := t.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			windowEnd := loc[1] + 40
			if windowEnd > len(text) {
				windowEnd = len(text)
			}
			window := text[loc[1]:windowEnd]
			m := labOpValueRe.FindStringSubmatch(window)
			if m == nil {
				continue
			}
			value, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			labs[cleanName] = core.LabRule{
				Operator: normalizeLabOperator(m[1]),
				Value:    value,
				Unit:     strings.TrimSpace(m[3]),
			}
			break
		}
	}
	return labs
}

func normalizeLabOperator(raw string) core.LabOperator {
	switch {
	case strings.Contains(raw, "greater"), raw == ">=", raw == "≥":
		if raw == ">=" || raw == "≥" {
			return core.OpGreaterOrEqual
		}
		return core.OpGreater
	case raw == ">":
		return core.OpGreater
	case strings.Contains(raw, "less"), raw == "up to", raw == "<=", raw == "≤":
		if raw == "<=" || raw == "≤" || raw == "up to" {
			return core.OpLessOrEqual
		}
		return core.OpLess
	case raw == "<":
		return core.OpLess
	case raw == "equals":
		return core.OpEqual
	default:
		return core.OpEqual
	}
}

var (
	chemoWashoutRe   = regexp.MustCompile(`(\d+)\s*(day|week|month)s?.*?since.*?(chemo|treatment|therapy)`)
	surgeryWashoutRe = regexp.MustCompile(`(\d+)\s*(day|week|month)s?.*?since.*?(surger|operation)`)
)

// extractTemporal ports _extract_temporal's washout extraction and
// week/month-to-day conversion.
func extractTemporal(text string) core.Temporal {
	var t core.Temporal
	if m := chemoWashoutRe.FindStringSubmatch(text); m != nil {
		if days, ok := toDays(m[1], m[2]); ok {
			t.ChemoWashoutDays = &days
		}
	}
	if m := surgeryWashoutRe.FindStringSubmatch(text); m != nil {
		if days, ok := toDays(m[1], m[2]); ok {
			t.SurgeryWashoutDays = &days
		}
	}
	return t
}

func toDays(valStr, unit string) (int, bool) {
	v, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, false
	}
	switch {
	case strings.Contains(unit, "week"):
		return v * 7, true
	case strings.Contains(unit, "month"):
		return v * 30, true
	default:
		return v, true
	}
}

var (
	naiveRe   = regexp.MustCompile(`\b(treatment|chemo|therapy)\s*(naïve|naive|free)\b`)
	linesMinRe = regexp.MustCompile(`(?:received|at least|>=)\s*(\d+)\s*(?:prior)?\s*(?:lines|regimens|therapies)`)
	linesMaxRe = regexp.MustCompile(`(?:no more than|up to|<=)\s*(\d+)\s*(?:prior)?\s*(?:lines|regimens|therapies)`)
)

// extractLines ports _extract_lines: treatment-naive forces max=0 and
// returns immediately; otherwise independent min/max patterns apply.
func extractLines(text string) core.LinesOfTherapy {
	if naiveRe.MatchString(text) {
		return core.LinesOfTherapy{Min: 0, Max: 0}
	}
	lines := core.LinesOfTherapy{Min: 0, NoMax: true}
	if m := linesMinRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			lines.Min = v
		}
	}
	if m := linesMaxRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			lines.Max = v
			lines.NoMax = false
		}
	}
	return lines
}

// exclusionPatterns maps each recognized exclusion flag to the regex that
// detects it, extending the prototype's four-flag _extract_exclusions to
// the full set spec.md §4.3 step 2 requires.
var exclusionPatterns = map[core.ExclusionFlag]*regexp.Regexp{
	core.ExclusionCNSMets:              regexp.MustCompile(`(brain|cns|central nervous system)\s*(metastas|mets|tumor)`),
	core.ExclusionHIV:                  regexp.MustCompile(`\b(hiv|human immunodeficiency virus|aids)\b`),
	core.ExclusionHepatitis:            regexp.MustCompile(`\b(hepatitis|hbv|hcv)\b`),
	core.ExclusionPregnancy:            regexp.MustCompile(`\b(pregnant|pregnancy|lactating|nursing|breastfeeding)\b`),
	core.ExclusionPriorMalignancy:      regexp.MustCompile(`(prior|history of|other)\s*(malignan|cancer|tumor)`),
	core.ExclusionCardiacDysfunction:   regexp.MustCompile(`\b(congestive heart failure|cardiac dysfunction|uncontrolled arrhythmia|unstable angina|myocardial infarction)\b`),
	core.ExclusionRenalDysfunction:     regexp.MustCompile(`\b(renal (?:failure|dysfunction|insufficiency)|dialysis|end-stage renal disease)\b`),
	core.ExclusionHepaticDysfunction:   regexp.MustCompile(`\b(hepatic (?:failure|dysfunction|impairment)|cirrhosis|child-pugh)\b`),
	core.ExclusionPulmonaryDysfunction: regexp.MustCompile(`\b(pulmonary (?:fibrosis|dysfunction)|interstitial lung disease|requires supplemental oxygen)\b`),
	core.ExclusionAutoimmuneDisease:    regexp.MustCompile(`\b(autoimmune disease|lupus|rheumatoid arthritis|crohn|ulcerative colitis)\b`),
	core.ExclusionActiveInfection:      regexp.MustCompile(`\b(active infection|uncontrolled infection|systemic infection requiring)\b`),
	core.ExclusionBleedingDisorder:     regexp.MustCompile(`\b(bleeding disorder|coagulopathy|hemophilia|uncontrolled bleeding)\b`),
	core.ExclusionSeizureDisorder:      regexp.MustCompile(`\b(seizure disorder|epilepsy|uncontrolled seizures)\b`),
}

// extractExclusions applies every registered exclusion pattern to text.
func extractExclusions(text string) map[core.ExclusionFlag]struct{} {
	found := map[core.ExclusionFlag]struct{}{}
	for _, flag := range core.AllExclusionFlags {
		if exclusionPatterns[flag].MatchString(text) {
			found[flag] = struct{}{}
		}
	}
	return found
}
