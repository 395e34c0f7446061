package event

import "slices"

// Tags is the fixed label vocabulary, in display order.
var Tags = []string{
	"posao",       // work
	"sastanak",    // meeting
	"obrazovanje", // education
	"zdravlje",    // health
	"sport",
	"lično",     // personal
	"društveno", // social
	"kupovina",  // shopping
	"zabava",    // entertainment
	"porodica",  // family
	"putovanje", // travel
	"projekat",  // project
	"rok",       // deadline
	"drugo",     // other
}

func IsKnownTag(t string) bool {
	return slices.Contains(Tags, t)
}

// FilterKnownTags drops labels outside the vocabulary and duplicates.
func FilterKnownTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range dedupe(in) {
		if IsKnownTag(t) {
			out = append(out, t)
		}
	}
	return out
}
