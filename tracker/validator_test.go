package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestIsValid runs the validator over a set of well known good and bad
// tracker lines.
func TestIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		candidate string
		valid     bool
	}{
		{"udp://tracker.opentrackr.org:1337/announce", true},
		{"http://tracker.example.com:80/announce", true},
		{"https://tracker.example.com/announce", true},
		{"wss://tracker.openwebtorrent.com", true},
		{"ws://tracker.example.com:8080", true},
		{"UDP://a:80", true},
		{"udp://a:80", true},
		{"udp://[2001:db8::1]:6969/announce", true},
		{"", false},
		{"invalid-line", false},
		{"# udp://commented.out:80", false},
		{"; udp://commented.out:80", false},
		{"// udp://commented.out:80", false},
		{"ftp://tracker.example.com:21", false},
		{"udp:tracker.example.com", false},
		{"udp://", false},
		{"udp://:6969", false},
		{"udp://host:0", false},
		{"udp://host:70000", false},
		{"udp://host:port", false},
		{" udp://a:80", false},
		{"udp://a:80/announce extra", false},
		{"udp://a:80,udp://b:80", false},
		{"http://%zz", false},
	}

	for _, test := range tests {
		require.Equal(
			t, test.valid, IsValid(test.candidate),
			"candidate %q", test.candidate,
		)
	}
}

// TestIsValidTotal asserts that the validator never panics and always gives
// the same answer for the same input.
func TestIsValidTotal(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		candidate := rapid.OneOf(
			rapid.String(),
			rapid.StringMatching(
				`(udp|https?|wss?|ftp)://[a-z0-9.:\[\]%-]{0,20}`+
					`(/[a-z]{0,8})?`,
			),
		).Draw(t, "candidate")

		first := IsValid(candidate)
		require.Equal(t, first, IsValid(candidate))

		// Every accepted address must already be normalized.
		if first {
			require.Equal(t, candidate, Normalize(candidate))
		}
	})
}

// TestNormalize checks whitespace and byte order mark stripping.
func TestNormalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, "udp://a:80", Normalize("  udp://a:80\r"))
	require.Equal(t, "udp://a:80", Normalize("\ufeffudp://a:80"))
	require.Empty(t, Normalize(" \t "))
}

// TestSplitList checks the parsing of an aria2 bt-tracker option value.
func TestSplitList(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		[]string{"udp://a:80", "udp://b:80", "udp://a:80", "http://c"},
		SplitList(" udp://a:80,udp://b:80,,\nudp://a:80\r\n, http://c "),
	)
	require.Empty(t, SplitList(""))
	require.Empty(t, SplitList(" , ,"))
}
