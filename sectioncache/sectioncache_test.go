package sectioncache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
)

func TestPutThenGet(t *testing.T) {
	c := New()
	result := clinextract.SectionResult{SectionID: "s1", Content: "hello"}
	require.NoError(t, c.Put("s1", result))

	got, ok := c.Get("s1")
	require.True(t, ok)
	require.Equal(t, "hello", got.Content)
}

func TestPutTwiceFails(t *testing.T) {
	c := New()
	require.NoError(t, c.Put("s1", clinextract.SectionResult{SectionID: "s1"}))
	require.Error(t, c.Put("s1", clinextract.SectionResult{SectionID: "s1"}))
}

func TestGetDependenciesOnlyReturnsKnown(t *testing.T) {
	c := New()
	require.NoError(t, c.Put("s1", clinextract.SectionResult{SectionID: "s1", Content: "a"}))

	deps := c.GetDependencies([]string{"s1", "s2"})
	require.Len(t, deps, 1)
	require.Equal(t, "a", deps[0].Content)
}
