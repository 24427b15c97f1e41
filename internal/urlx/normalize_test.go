package urlx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "root with trailing slash",
			in:   "https://example.com/",
			want: "https://example.com",
		},
		{
			name: "locale prefix removed",
			in:   "https://example.com/en/articles",
			want: "https://example.com/articles",
		},
		{
			name: "locale prefix alone",
			in:   "https://www.iccube.com/fr?utm_campaign=google",
			want: "https://www.iccube.com",
		},
		{
			name: "tracking params stripped, others kept in order",
			in:   "https://example.com/p?b=2&utm_source=x&a=1&fbclid=abc",
			want: "https://example.com/p?b=2&a=1",
		},
		{
			name: "locale-only params stripped",
			in:   "https://example.com/p?lang=fr&locale=fr_FR&id=7",
			want: "https://example.com/p?id=7",
		},
		{
			name: "three-letter first segment kept",
			in:   "https://example.com/eng/articles",
			want: "https://example.com/eng/articles",
		},
		{
			name: "trailing slashes collapse",
			in:   "https://example.com/a/b///",
			want: "https://example.com/a/b",
		},
		{
			name: "fragment removed",
			in:   "https://example.com/a#section",
			want: "https://example.com/a",
		},
		{
			name: "invalid input returned unchanged",
			in:   "::not a url::",
			want: "::not a url::",
		},
		{
			name: "relative input returned unchanged",
			in:   "/just/a/path",
			want: "/just/a/path",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://example.com/en/?utm_source=x",
		"https://example.com/en/fr/page",
		"https://www.iccube.com/?r=0&utm_campaign=google",
		"https://example.com/a/b/?x=1&y=2",
		"not a url at all",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_EquivalentForms(t *testing.T) {
	a := Normalize("https://www.iccube.com/fr?utm_campaign=google")
	b := Normalize("https://www.iccube.com/?r=0&utm_campaign=google")
	c := Normalize("https://www.iccube.com/")

	require.Equal(t, a, b)
	require.Equal(t, b, c)
	require.Equal(t, "https://www.iccube.com", c)
}
