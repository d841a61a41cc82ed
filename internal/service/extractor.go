package service

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"renterchat/internal/matcher"
	"renterchat/internal/model"
	"renterchat/internal/utils"

	"go.uber.org/zap"
)

// Confidence levels for extracted values
const (
	ConfidenceExact    = 1.0
	ConfidenceAssisted = 0.8
)

var (
	bedroomPattern = regexp.MustCompile(`\b(\d{1,2}|one|two|three|four|five)\s*-?\s*(?:bedrooms?|beds?|bdrms?|br|bd)\b`)
	studioPattern  = regexp.MustCompile(`\bstudios?\b`)

	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayPattern   = regexp.MustCompile(`\b(` + monthAlternation + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	monthYearPattern  = regexp.MustCompile(`\b(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
	relativeMonthPatt = regexp.MustCompile(`\b(?:in|by|around|early|mid|late|starting|from|this|next)\s+(` + monthAlternation + `)\b`)
	moveContext       = regexp.MustCompile(`\b(?:move|moving|moved|start|starting|lease)\b`)

	dollarPattern = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k)?\b`)
	budgetPattern = regexp.MustCompile(`\bbudget\s+(?:of\s+|is\s+|around\s+|about\s+|up to\s+|:\s*)?\$?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k)?\b`)
	kiloPattern   = regexp.MustCompile(`\b(\d+(?:\.\d+)?)k\b`)

	unitPattern = regexp.MustCompile(`(?i)\b(?:unit|apt)\.?\s+#?([A-Za-z]*\d[A-Za-z0-9-]*)\b`)

	capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	prepositionPhrase = regexp.MustCompile(`\b(?:at|in|near|about|for|from)\s+(?:the\s+)?([a-z]+(?:\s+[a-z]+)?)`)
)

const monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var numberWords = map[string]int{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5}

// leadingStopwords are trimmed from the front of fuzzy community candidates
var leadingStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "your": true, "our": true, "this": true,
	"that": true, "is": true, "are": true, "do": true, "does": true, "can": true, "could": true,
	"what": true, "how": true, "hi": true, "hello": true, "hey": true, "thanks": true,
}

// nonPlaceWords reject a fuzzy community candidate when they lead it
var nonPlaceWords = map[string]bool{
	"it": true, "me": true, "us": true, "you": true, "one": true, "two": true, "three": true,
	"unit": true, "units": true, "apartment": true, "apartments": true, "bedroom": true,
	"bedrooms": true, "studio": true, "rent": true, "pets": true, "pet": true, "price": true,
	"pricing": true, "move": true, "tour": true, "person": true, "total": true, "now": true,
	"general": true, "advance": true, "case": true, "mind": true, "budget": true, "touch": true,
}

// genericSuffixes are dropped from community names to form short aliases
var genericSuffixes = []string{"apartments", "apartment", "homes", "residences", "community"}

// ExtractionAssistant asks a language model for preferences the heuristics
// may have missed
type ExtractionAssistant interface {
	ExtractPreferences(ctx context.Context, message string) (*AssistedPreferences, error)
}

// AssistedPreferences is the JSON shape the extraction prompt asks for
type AssistedPreferences struct {
	Community  string `json:"community,omitempty"`
	MoveInDate string `json:"move_in_date,omitempty"`
	Bedrooms   *int   `json:"bedrooms,omitempty"`
	PetType    string `json:"pet_type,omitempty"`
	Budget     *int   `json:"budget,omitempty"`
	UnitID     string `json:"unit_id,omitempty"`
}

// Extractor turns free text into preference tuples. It never writes to
// memory; the session store merges what it returns.
type Extractor struct {
	resolver    matcher.Resolver
	pets        *matcher.Catalog
	communities *matcher.Catalog
	vocabulary  []communityPhrase
	assistant   ExtractionAssistant
	now         func() time.Time
	logger      *zap.Logger
}

type communityPhrase struct {
	phrase string
	id     string
}

// candidate is one possible value for a field found in a message
type candidate struct {
	field      model.Field
	value      string
	confidence float64
	pos        int
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithAssistant enables LLM-assisted extraction
func WithAssistant(a ExtractionAssistant) ExtractorOption {
	return func(e *Extractor) { e.assistant = a }
}

// WithExtractorClock overrides the clock used to resolve "in July"
func WithExtractorClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an extractor resolving fuzzy terms through resolver
// against the pet and community catalogs
func NewExtractor(resolver matcher.Resolver, pets, communities *matcher.Catalog, logger *zap.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		resolver:    resolver,
		pets:        pets,
		communities: communities,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.vocabulary = buildCommunityVocabulary(communities)
	return e
}

// Extract returns at most one preference per field: the highest confidence
// candidate, the earliest one on ties. existing is read only to skip fuzzy
// resolution for fields already known exactly.
func (e *Extractor) Extract(ctx context.Context, message string, existing *model.ClientMemory) []model.Preference {
	known := model.PreferenceSet{}
	if existing != nil {
		known = existing.Preferences
	}

	lower := strings.ToLower(message)
	words := tokenize(message)

	var found []candidate
	found = append(found, e.bedrooms(lower)...)
	found = append(found, e.moveInDate(lower)...)
	found = append(found, e.budget(lower)...)
	found = append(found, e.unit(message)...)
	found = append(found, e.petType(ctx, words, known.Known(model.FieldPetType, ConfidenceExact))...)
	found = append(found, e.community(ctx, message, words, known.Known(model.FieldCommunity, ConfidenceExact))...)

	if e.assistant != nil {
		found = append(found, e.assisted(ctx, message, len(message)+1)...)
	}

	return pickBest(found)
}

// ResolveHints maps caller-supplied pet and community hints onto catalog
// ids. A pet hint nothing resolves is dropped. An unknown community id is
// kept as given so the lookup tools can report it as not found.
func (e *Extractor) ResolveHints(ctx context.Context, hints []model.Preference) []model.Preference {
	out := make([]model.Preference, 0, len(hints))
	for _, h := range hints {
		switch h.Field {
		case model.FieldPetType:
			id, score, ok := e.resolveHint(ctx, h.Value, e.pets, catalogEntryFor)
			if !ok {
				e.logger.Debug("dropped unresolved pet hint", zap.String("hint", h.Value))
				continue
			}
			h.Value, h.Confidence = id, score
		case model.FieldCommunity:
			if id, score, ok := e.resolveHint(ctx, h.Value, e.communities, e.communityEntryFor); ok {
				h.Value, h.Confidence = id, score
			}
		}
		out = append(out, h)
	}
	return out
}

func (e *Extractor) resolveHint(ctx context.Context, term string, catalog *matcher.Catalog, exact func(*matcher.Catalog, string) (string, bool)) (string, float64, bool) {
	if catalog == nil || term == "" {
		return "", 0, false
	}
	if id, ok := exact(catalog, term); ok {
		return id, ConfidenceExact, true
	}
	if e.resolver == nil {
		return "", 0, false
	}
	m, ok := e.resolver.Resolve(ctx, term, catalog)
	if !ok {
		return "", 0, false
	}
	e.logger.Debug("resolved hint",
		zap.String("catalog", catalog.Name),
		zap.String("hint", term),
		zap.String("id", m.ID),
		zap.Float64("score", m.Score),
	)
	return m.ID, m.Score, true
}

// communityEntryFor matches a community id, name or short name exactly
func (e *Extractor) communityEntryFor(_ *matcher.Catalog, term string) (string, bool) {
	norm := utils.NormalizeTerm(term)
	for _, v := range e.vocabulary {
		if v.phrase == norm {
			return v.id, true
		}
	}
	return "", false
}

func (e *Extractor) bedrooms(lower string) []candidate {
	var out []candidate
	for _, m := range bedroomPattern.FindAllStringSubmatchIndex(lower, -1) {
		raw := lower[m[2]:m[3]]
		n, ok := numberWords[raw]
		if !ok {
			n, _ = strconv.Atoi(raw)
		}
		out = append(out, candidate{model.FieldBedrooms, strconv.Itoa(n), ConfidenceExact, m[0]})
	}
	for _, m := range studioPattern.FindAllStringIndex(lower, -1) {
		out = append(out, candidate{model.FieldBedrooms, "0", ConfidenceExact, m[0]})
	}
	return out
}

func (e *Extractor) moveInDate(lower string) []candidate {
	now := e.now()
	var out []candidate

	for _, m := range isoDatePattern.FindAllStringSubmatchIndex(lower, -1) {
		value := lower[m[0]:m[1]]
		if _, err := time.Parse(model.DateLayout, value); err == nil {
			out = append(out, candidate{model.FieldMoveInDate, value, ConfidenceExact, m[0]})
		}
	}

	for _, m := range monthDayPattern.FindAllStringSubmatchIndex(lower, -1) {
		month := months[lower[m[2]:m[3]]]
		day, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := 0
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
		}
		if date, ok := buildDate(now, year, month, day); ok {
			out = append(out, candidate{model.FieldMoveInDate, date, ConfidenceExact, m[0]})
		}
	}

	for _, m := range monthYearPattern.FindAllStringSubmatchIndex(lower, -1) {
		month := months[lower[m[2]:m[3]]]
		year, _ := strconv.Atoi(lower[m[4]:m[5]])
		if date, ok := buildDate(now, year, month, 1); ok {
			out = append(out, candidate{model.FieldMoveInDate, date, ConfidenceExact, m[0]})
		}
	}

	// "this may" is usually the verb; only read it as a month next to a move
	mayIsMonth := moveContext.MatchString(lower)
	for _, m := range relativeMonthPatt.FindAllStringSubmatchIndex(lower, -1) {
		word := lower[m[2]:m[3]]
		if word == "may" && !mayIsMonth {
			continue
		}
		month := months[word]
		if date, ok := buildDate(now, 0, month, 1); ok {
			out = append(out, candidate{model.FieldMoveInDate, date, ConfidenceExact, m[2]})
		}
	}

	return out
}

func (e *Extractor) budget(lower string) []candidate {
	var out []candidate
	for _, pattern := range []*regexp.Regexp{budgetPattern, dollarPattern} {
		for _, m := range pattern.FindAllStringSubmatchIndex(lower, -1) {
			thousands := m[4] >= 0
			if n, ok := parseAmount(lower[m[2]:m[3]], thousands); ok {
				out = append(out, candidate{model.FieldBudget, strconv.Itoa(n), ConfidenceExact, m[0]})
			}
		}
	}
	if len(out) == 0 {
		for _, m := range kiloPattern.FindAllStringSubmatchIndex(lower, -1) {
			if n, ok := parseAmount(lower[m[2]:m[3]], true); ok {
				out = append(out, candidate{model.FieldBudget, strconv.Itoa(n), ConfidenceExact, m[0]})
			}
		}
	}
	return out
}

func (e *Extractor) unit(message string) []candidate {
	var out []candidate
	for _, m := range unitPattern.FindAllStringSubmatchIndex(message, -1) {
		out = append(out, candidate{model.FieldUnitID, strings.ToUpper(message[m[2]:m[3]]), ConfidenceExact, m[0]})
	}
	return out
}

// petType scans for pet nouns. A noun naming a catalog entry is exact;
// anything else ("hamster", "kitten") goes through the resolver chain.
func (e *Extractor) petType(ctx context.Context, words []string, knownExactly bool) []candidate {
	if e.pets == nil {
		return nil
	}
	text := " " + strings.Join(words, " ") + " "
	singular := " " + strings.Join(singularize(words), " ") + " "

	var out []candidate
	for _, word := range utils.PetWords() {
		pos := strings.Index(text, " "+word+" ")
		if pos < 0 {
			pos = strings.Index(singular, " "+word+" ")
		}
		if pos < 0 {
			continue
		}

		if id, ok := catalogEntryFor(e.pets, word); ok {
			out = append(out, candidate{model.FieldPetType, id, ConfidenceExact, pos})
			continue
		}
		if knownExactly || e.resolver == nil {
			continue
		}
		if m, ok := e.resolver.Resolve(ctx, word, e.pets); ok {
			e.logger.Debug("resolved pet term",
				zap.String("term", word),
				zap.String("id", m.ID),
				zap.Float64("score", m.Score),
				zap.String("strategy", m.Strategy),
			)
			out = append(out, candidate{model.FieldPetType, m.ID, m.Score, pos})
		}
	}
	return out
}

// community scans for catalog names and ids, then resolves likely place
// phrases through the resolver chain when nothing matched exactly
func (e *Extractor) community(ctx context.Context, message string, words []string, knownExactly bool) []candidate {
	if e.communities == nil {
		return nil
	}
	text := " " + strings.Join(words, " ") + " "

	var out []candidate
	for _, v := range e.vocabulary {
		if pos := strings.Index(text, " "+v.phrase+" "); pos >= 0 {
			out = append(out, candidate{model.FieldCommunity, v.id, ConfidenceExact, pos})
		}
	}
	if len(out) > 0 || knownExactly || e.resolver == nil {
		return out
	}

	for _, phrase := range communityCandidates(message) {
		m, ok := e.resolver.Resolve(ctx, phrase.text, e.communities)
		if !ok {
			continue
		}
		e.logger.Debug("resolved community phrase",
			zap.String("phrase", phrase.text),
			zap.String("id", m.ID),
			zap.Float64("score", m.Score),
			zap.String("strategy", m.Strategy),
		)
		out = append(out, candidate{model.FieldCommunity, m.ID, m.Score, phrase.pos})
	}
	return out
}

// assisted asks the language model and re-resolves pet and community
// answers through the matcher. Errors only cost the extra recall.
func (e *Extractor) assisted(ctx context.Context, message string, pos int) []candidate {
	prefs, err := e.assistant.ExtractPreferences(ctx, message)
	if err != nil {
		e.logger.Warn("assisted extraction failed", zap.Error(err))
		return nil
	}
	if prefs == nil {
		return nil
	}

	var out []candidate
	add := func(field model.Field, value string, confidence float64) {
		if value == "" || model.ValidateValue(field, value) != nil {
			return
		}
		out = append(out, candidate{field, value, confidence, pos})
	}

	if prefs.Bedrooms != nil {
		add(model.FieldBedrooms, strconv.Itoa(*prefs.Bedrooms), ConfidenceAssisted)
	}
	if prefs.Budget != nil {
		add(model.FieldBudget, strconv.Itoa(*prefs.Budget), ConfidenceAssisted)
	}
	add(model.FieldMoveInDate, strings.TrimSpace(prefs.MoveInDate), ConfidenceAssisted)
	add(model.FieldUnitID, strings.ToUpper(strings.TrimSpace(prefs.UnitID)), ConfidenceAssisted)

	resolve := func(field model.Field, term string, catalog *matcher.Catalog) {
		if term == "" || catalog == nil || e.resolver == nil {
			return
		}
		if m, ok := e.resolver.Resolve(ctx, term, catalog); ok {
			add(field, m.ID, min(ConfidenceAssisted, m.Score))
		}
	}
	resolve(model.FieldPetType, prefs.PetType, e.pets)
	resolve(model.FieldCommunity, prefs.Community, e.communities)

	return out
}

// Helper functions

type phraseAt struct {
	text string
	pos  int
}

// communityCandidates returns capitalized multi-word names and short
// phrases after place prepositions, in message order
func communityCandidates(message string) []phraseAt {
	var out []phraseAt
	seen := map[string]bool{}
	add := func(text string, pos int) {
		words := strings.Fields(utils.NormalizeTerm(text))
		for len(words) > 0 && leadingStopwords[words[0]] {
			words = words[1:]
		}
		if len(words) == 0 {
			return
		}
		text = strings.Join(words, " ")
		if seen[text] || nonPlaceWords[words[0]] || months[words[0]] != 0 || isNumber(words[0]) {
			return
		}
		if _, isPet := utils.CanonicalPet(text); isPet {
			return
		}
		seen[text] = true
		out = append(out, phraseAt{text, pos})
	}

	for _, m := range capitalizedPhrase.FindAllStringIndex(message, -1) {
		add(message[m[0]:m[1]], m[0])
	}
	lower := strings.ToLower(message)
	for _, m := range prepositionPhrase.FindAllStringSubmatchIndex(lower, -1) {
		add(lower[m[2]:m[3]], m[2])
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

func buildCommunityVocabulary(catalog *matcher.Catalog) []communityPhrase {
	if catalog == nil {
		return nil
	}
	var out []communityPhrase
	seen := map[string]bool{}
	add := func(phrase, id string) {
		phrase = utils.NormalizeTerm(phrase)
		if phrase == "" || seen[phrase] {
			return
		}
		seen[phrase] = true
		out = append(out, communityPhrase{phrase: phrase, id: id})
	}

	for _, entry := range catalog.Entries {
		add(entry.ID, entry.ID)
		add(entry.Label, entry.ID)
		label := utils.NormalizeTerm(entry.Label)
		for _, suffix := range genericSuffixes {
			if short, ok := strings.CutSuffix(label, " "+suffix); ok && strings.Contains(short, " ") {
				add(short, entry.ID)
			}
		}
	}

	// Longest phrases first so "oak valley" wins over shorter overlaps
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].phrase) > len(out[j].phrase) })
	return out
}

// catalogEntryFor reports the catalog id a pet word names directly
func catalogEntryFor(catalog *matcher.Catalog, word string) (string, bool) {
	norm := utils.NormalizeTerm(word)
	single := utils.Singular(norm)
	for _, entry := range catalog.Entries {
		id := utils.NormalizeTerm(entry.ID)
		label := utils.NormalizeTerm(entry.Label)
		if norm == id || norm == label || single == id || single == utils.Singular(label) {
			return entry.ID, true
		}
	}
	return "", false
}

// pickBest keeps the highest confidence candidate per field, earliest first
// on ties, and returns them in field priority order
func pickBest(found []candidate) []model.Preference {
	best := map[model.Field]candidate{}
	for _, c := range found {
		if c.confidence <= 0 || model.ValidateValue(c.field, c.value) != nil {
			continue
		}
		cur, ok := best[c.field]
		if !ok || c.confidence > cur.confidence || (c.confidence == cur.confidence && c.pos < cur.pos) {
			best[c.field] = c
		}
	}

	var out []model.Preference
	for _, f := range model.Fields {
		if c, ok := best[f]; ok {
			out = append(out, model.Preference{Field: f, Value: c.value, Confidence: c.confidence})
		}
	}
	return out
}

// buildDate returns a YYYY-MM-DD date. Without a year the next occurrence
// on or after today is used.
func buildDate(now time.Time, year int, month time.Month, day int) (string, bool) {
	if month == 0 || day < 1 || day > 31 {
		return "", false
	}
	if year == 0 {
		year = now.Year()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Before(today) && !(day == 1 && month == now.Month()) {
			year++
		}
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	return t.Format(model.DateLayout), true
}

// parseAmount parses "2,500", "2500" or "2.5" (with thousands) into dollars
func parseAmount(raw string, thousands bool) (int, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if thousands {
		f *= 1000
	}
	if f < 500 || f > 100000 {
		return 0, false
	}
	return int(f), true
}

func tokenize(message string) []string {
	return strings.Fields(strings.ToLower(stripPunctuation(message)))
}

func singularize(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = utils.Singular(w)
	}
	return out
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
