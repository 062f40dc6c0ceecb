package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// A duplicate must be detected even though the two titles share no
// substring containment under exact-token matching ("follow" vs
// "following").
func TestSimilarTitles_InflectedContinuation(t *testing.T) {
	assert.True(t, similarTitles("Follow up with Alice", "Continue following up with Alice"))
}

func TestSimilarTitles_ExactMatch(t *testing.T) {
	assert.True(t, similarTitles("Research competitors", "Research competitors"))
}

func TestSimilarTitles_SubstringContainment(t *testing.T) {
	assert.True(t, similarTitles("Send weekly report", "Send weekly report to the team"))
}

func TestSimilarTitles_Unrelated(t *testing.T) {
	assert.False(t, similarTitles("Follow up with Alice", "Renew the SSL certificate"))
}

func TestSimilarTitles_DigitsAndQualifiersIgnored(t *testing.T) {
	assert.True(t, similarTitles("Send report (v2)", "Send report 2"))
}

func TestStem_CollapsesInflections(t *testing.T) {
	assert.Equal(t, stem("following"), stem("follow"))
	assert.Equal(t, "call", stem("calls"))
}

func TestStem_LeavesShortWordsAlone(t *testing.T) {
	assert.Equal(t, "this", stem("this"))
}
