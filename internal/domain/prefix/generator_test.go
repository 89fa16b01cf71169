package prefix

import (
	"testing"

	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Basic(t *testing.T) {
	got := Generate("Billing Platform", map[string]bool{}, 4)
	require.Equal(t, "BILL", got)
}

func TestGenerate_StripsNonAlphabetic(t *testing.T) {
	got := Generate("  ops-2024 / Tooling! ", map[string]bool{}, 4)
	require.Equal(t, "OPST", got)
}

func TestGenerate_ExpandsOnCollision(t *testing.T) {
	taken := map[string]bool{"PRIM": true}
	got := Generate("Prim100 US Support", taken, 4)
	require.Equal(t, "PRIMU", got)
}

func TestGenerate_NumericSuffixWhenExhausted(t *testing.T) {
	taken := map[string]bool{
		"ABCD": true,
		"ABCDE": true,
		"ABCDEF": true,
	}
	got := Generate("abcdef", taken, 4)
	require.Equal(t, "ABCD2", got)
}

func TestGenerate_EmptyAlphaFallback(t *testing.T) {
	got := Generate("2024", map[string]bool{"AAAA": true, "BBBB": true}, 4)
	require.Equal(t, "PROJ3", got)
}

func TestGenerate_ShorterThanMinLength(t *testing.T) {
	got := Generate("Go", map[string]bool{}, 4)
	require.Equal(t, "GO", got)

	got = Generate("Go", map[string]bool{"GO": true}, 4)
	require.Equal(t, "GO2", got)
}

func TestGenerateAll_CollisionScenario(t *testing.T) {
	projects := []task.Project{
		{ID: "p2", Name: "Prim100 US Support"},
		{ID: "p1", Name: "Prim100 Support"},
	}

	idToPrefix, prefixToID := GenerateAll(projects, 4)
	require.Equal(t, "PRIM", idToPrefix["p1"])
	require.Equal(t, "PRIMU", idToPrefix["p2"])
	require.Equal(t, "p1", prefixToID["PRIM"])
	require.Equal(t, "p2", prefixToID["PRIMU"])
}

func TestGenerateAll_Idempotent(t *testing.T) {
	projects := []task.Project{
		{ID: "a", Name: "Atlas"},
		{ID: "b", Name: "Beacon"},
		{ID: "c", Name: "Atlas Tools"},
	}

	first, firstIndex := GenerateAll(projects, 4)

	// Same set, different discovery order.
	shuffled := []task.Project{projects[2], projects[0], projects[1]}
	second, secondIndex := GenerateAll(shuffled, 4)

	require.Equal(t, first, second)
	require.Equal(t, firstIndex, secondIndex)
}

func TestGenerateAll_PairwiseDistinct(t *testing.T) {
	projects := []task.Project{
		{ID: "1", Name: "Core"},
		{ID: "2", Name: "Core API"},
		{ID: "3", Name: "Core App"},
		{ID: "4", Name: "Corp"},
		{ID: "5", Name: "42"},
		{ID: "6", Name: "!!!"},
	}

	idToPrefix, prefixToID := GenerateAll(projects, 4)
	require.Len(t, idToPrefix, len(projects))
	require.Len(t, prefixToID, len(projects))

	seen := map[string]bool{}
	for _, prefix := range idToPrefix {
		require.False(t, seen[prefix], "duplicate prefix %s", prefix)
		seen[prefix] = true
	}
}

func TestGenerateAll_NewEntryCanShiftLaterPrefixes(t *testing.T) {
	// Recompute mode is a pure function of the name set, which means a
	// newcomer that sorts earlier can steal a short truncation from an
	// existing project.
	before, _ := GenerateAll([]task.Project{
		{ID: "sup", Name: "Prim100 US Support"},
	}, 4)
	require.Equal(t, "PRIM", before["sup"])

	after, _ := GenerateAll([]task.Project{
		{ID: "sup", Name: "Prim100 US Support"},
		{ID: "core", Name: "Prim100 Support"},
	}, 4)
	require.Equal(t, "PRIM", after["core"])
	require.Equal(t, "PRIMU", after["sup"])
}
