package phenotype

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"0001250":        "HP:0001250",
		"hp0001250":      "HP:0001250",
		"HP:0001250":     "HP:0001250",
		"  hp:0001250  ": "HP:0001250",
		"HP_0001250":     "HP:0001250",
		"ＨＰ：０００１２５０":     "HP:0001250",
		"":               "",
		"   ":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{"0001250", "hp0001166", "HP:0000001", " x12 "} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
		assert.Equal(t, 1, strings.Count(once, Prefix), "input %q", in)
	}
}

func TestPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("temp-1700000000000"))
	assert.True(t, IsPlaceholder(" temp-1 "))
	assert.False(t, IsPlaceholder("HP:0001250"))
}

func TestCodeSet(t *testing.T) {
	s := NewCodeSet("hp0001166", "HP:0001166", "", "0004322")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("hp:0001166"))
	assert.False(t, s.Has("HP:0000001"))
	assert.Equal(t, []string{"HP:0001166", "HP:0004322"}, s.Sorted())

	var empty CodeSet
	assert.False(t, empty.Has("HP:0001166"))
}

func TestTermURL(t *testing.T) {
	assert.Equal(t, "https://hpo.jax.org/app/browse/term/HP:0001250", TermURL("0001250"))
}
