// Package prefix assigns short, human-readable project codes used to build
// ticket keys like "PRIM-242". Assignment is deterministic for a given set
// of project names so that repeated syncs reproduce the same mapping.
package prefix

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ganot/taskdeck/internal/domain/task"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Generate derives a prefix for name that does not collide with any prefix
// in taken. The shortest unique truncation of the alphabetic characters of
// name is used, starting at minLength; if every truncation is taken, a
// numeric suffix is appended to the minLength truncation.
func Generate(name string, taken map[string]bool, minLength int) string {
	alpha := alphaUpper(name)

	if alpha == "" {
		// Nothing usable in the name; fall back to a numbered placeholder.
		n := len(taken) + 1
		candidate := fmt.Sprintf("PROJ%d", n)
		for taken[candidate] {
			n++
			candidate = fmt.Sprintf("PROJ%d", n)
		}
		return candidate
	}

	for length := minLength; length <= len(alpha); length++ {
		candidate := alpha[:length]
		if !taken[candidate] {
			return candidate
		}
	}

	base := alpha
	if len(alpha) > minLength {
		base = alpha[:minLength]
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// GenerateAll assigns prefixes to every project, processing projects in
// collated name order so the result is a function of the name set rather
// than of discovery order. Returns projectID→prefix and prefix→projectID.
//
// Note: adding a project whose name collates before an existing one can
// shift the prefixes of later projects when their short truncations collide
// with the newcomer. Use a Ledger when stable keys matter.
func GenerateAll(projects []task.Project, minLength int) (map[string]string, map[string]string) {
	sorted := sortByName(projects)

	idToPrefix := make(map[string]string, len(sorted))
	prefixToID := make(map[string]string, len(sorted))
	taken := make(map[string]bool, len(sorted))

	for _, p := range sorted {
		prefix := Generate(p.Name, taken, minLength)
		taken[prefix] = true
		idToPrefix[p.ID] = prefix
		prefixToID[prefix] = p.ID
	}

	return idToPrefix, prefixToID
}

func sortByName(projects []task.Project) []task.Project {
	sorted := make([]task.Project, len(projects))
	copy(sorted, projects)

	cl := collate.New(language.Und)
	sort.Slice(sorted, func(i, j int) bool {
		if c := cl.CompareString(sorted[i].Name, sorted[j].Name); c != 0 {
			return c < 0
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func alphaUpper(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(unicode.ToUpper(r))
		} else if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
