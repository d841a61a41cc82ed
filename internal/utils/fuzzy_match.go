package utils

import (
	"sort"
	"strings"
)

// petAliases maps everyday pet words onto canonical pet type ids
var petAliases = map[string][]string{
	"dog":        {"dog", "puppy", "pup", "doggy", "canine", "hound", "labrador", "retriever", "poodle", "terrier"},
	"cat":        {"cat", "kitten", "kitty", "feline"},
	"bird":       {"bird", "parrot", "parakeet", "budgie", "cockatiel", "canary", "finch"},
	"fish":       {"fish", "goldfish", "betta", "aquarium", "fish tank"},
	"small_pets": {"small pet", "hamster", "gerbil", "guinea pig", "rabbit", "bunny", "ferret", "mouse", "mice", "rat", "chinchilla"},
	"reptile":    {"reptile", "lizard", "gecko", "snake", "turtle", "tortoise", "iguana"},
}

// amenityAliases groups the names communities use for the same amenity
var amenityAliases = map[string][]string{
	"pool":    {"pool", "swimming pool"},
	"gym":     {"gym", "fitness", "fitness center", "gymnasium"},
	"parking": {"parking", "garage", "covered parking", "car park"},
	"laundry": {"laundry", "washer", "dryer", "washer/dryer", "in-unit laundry"},
	"dog":     {"dog park", "pet park", "pet spa", "dog wash"},
	"balcony": {"balcony", "patio", "terrace"},
}

// NormalizeTerm lowercases, trims, and turns separators into single spaces
func NormalizeTerm(term string) string {
	s := strings.ToLower(strings.TrimSpace(term))
	s = strings.NewReplacer("-", " ", "_", " ", ".", " ", ",", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Singular strips a plural suffix from a normalized word
func Singular(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3:
		return word[:len(word)-1]
	}
	return word
}

// CanonicalPet maps a pet word or phrase to its canonical pet type id
// Returns false when the term is not a known pet word
func CanonicalPet(term string) (string, bool) {
	norm := NormalizeTerm(term)
	single := Singular(norm)

	for id, aliases := range petAliases {
		for _, alias := range aliases {
			if norm == alias || single == alias {
				return id, true
			}
		}
	}
	return "", false
}

// PetWords returns every pet word the alias table knows, longest first so
// multi-word phrases are scanned before their parts
func PetWords() []string {
	var words []string
	for _, aliases := range petAliases {
		words = append(words, aliases...)
	}
	sortByLengthDesc(words)
	return words
}

// FuzzyMatchAmenity reports whether a search term names the given amenity
func FuzzyMatchAmenity(searchTerm, amenity string) bool {
	search := NormalizeTerm(searchTerm)
	target := NormalizeTerm(amenity)
	if search == "" {
		return false
	}

	// Exact or contains match
	if search == target || strings.Contains(target, search) {
		return true
	}

	// Check aliases in both directions
	for key, values := range amenityAliases {
		if !strings.Contains(search, key) {
			continue
		}
		for _, alias := range values {
			if strings.Contains(target, alias) {
				return true
			}
		}
	}

	return false
}

// Helper functions

func sortByLengthDesc(words []string) {
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
}
