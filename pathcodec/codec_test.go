package pathcodec

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		ancestors []string
		own       string
		want      string
		wantErr   bool
	}{
		{name: "root", own: "electronics", want: "electronics"},
		{name: "nested", ancestors: []string{"electronics", "phones"}, own: "smartphones", want: "electronics/phones/smartphones"},
		{name: "empty own segment", ancestors: []string{"electronics"}, own: "", wantErr: true},
		{name: "delimiter in own segment", own: "tv/audio", wantErr: true},
		{name: "empty ancestor segment", ancestors: []string{""}, own: "phones", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.ancestors, tt.own)
			if tt.wantErr {
				var segErr *InvalidSegmentError
				assert.True(t, errors.As(err, &segErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	segments, err := Decode("electronics/phones/smartphones")
	require.NoError(t, err)
	assert.Equal(t, []string{"electronics", "phones", "smartphones"}, segments)

	for _, bad := range []string{"", "electronics//phones", "/electronics", "electronics/"} {
		_, err := Decode(bad)
		var pathErr *MalformedPathError
		assert.True(t, errors.As(err, &pathErr), "expected malformed path for %q", bad)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	chains := [][]string{
		{"a"},
		{"a", "b"},
		{"electronics", "phones", "smartphones", "android"},
		{"home-garden", "kuche", "2024"},
	}

	for _, chain := range chains {
		path, err := Encode(chain[:len(chain)-1], chain[len(chain)-1])
		require.NoError(t, err)

		decoded, err := Decode(path)
		require.NoError(t, err)
		assert.Equal(t, chain, decoded)
		assert.Equal(t, len(chain)-1, DepthOf(path))
	}
}

func TestIsDescendantPath(t *testing.T) {
	assert.True(t, IsDescendantPath("a/b", "a"))
	assert.True(t, IsDescendantPath("a/b/c", "a"))
	assert.False(t, IsDescendantPath("a", "a"), "equal paths are not descendants")
	assert.False(t, IsDescendantPath("ab/c", "a"), "prefix must end at a segment boundary")
	assert.False(t, IsDescendantPath("a", "a/b"))
	assert.False(t, IsDescendantPath("a", ""))
}

func TestDepthOf(t *testing.T) {
	assert.Equal(t, 0, DepthOf("electronics"))
	assert.Equal(t, 1, DepthOf("electronics/phones"))
	assert.Equal(t, -1, DepthOf(""))
}

func TestParentAndLastSegment(t *testing.T) {
	assert.Equal(t, "a/b", Parent("a/b/c"))
	assert.Equal(t, "", Parent("a"))
	assert.Equal(t, "c", LastSegment("a/b/c"))
	assert.Equal(t, "a", LastSegment("a"))
}

func TestPrefixes(t *testing.T) {
	prefixes, err := Prefixes("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b", "a/b/c"}, prefixes)
}

func TestRebase(t *testing.T) {
	got, err := Rebase("electronics/phones/smartphones", "electronics/phones", "archive/phones")
	require.NoError(t, err)
	assert.Equal(t, "archive/phones/smartphones", got)

	got, err = Rebase("electronics/phones", "electronics/phones", "phones")
	require.NoError(t, err)
	assert.Equal(t, "phones", got)

	_, err = Rebase("electronics/tv", "electronics/phones", "archive/phones")
	assert.Error(t, err)
}

func TestCommonPrefix(t *testing.T) {
	got, err := CommonPrefix("a/b/c", "a/b/d/e")
	require.NoError(t, err)
	assert.Equal(t, "a/b", got)

	got, err = CommonPrefix("a/b", "x/y")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = CommonPrefix("a/b", "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "a/b", got)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps("a", "a"))
	assert.True(t, Overlaps("a", "a/b"))
	assert.True(t, Overlaps("a/b", "a"))
	assert.True(t, Overlaps("", "x"))
	assert.False(t, Overlaps("a/b", "a/c"))
	assert.False(t, Overlaps("a", "ab"))
}

func TestCompareIsPreOrder(t *testing.T) {
	paths := []string{"a/b-c", "a/b/x", "a", "a/b", "a/b-c/y", "b"}
	sort.Slice(paths, func(i, j int) bool { return Compare(paths[i], paths[j]) < 0 })

	assert.Equal(t, []string{"a", "a/b", "a/b/x", "a/b-c", "a/b-c/y", "b"}, paths)
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "Electronics", want: "electronics"},
		{name: "spaces and punctuation", in: "  Home & Garden ", want: "home-garden"},
		{name: "delimiter in name", in: "TV/Audio", want: "tv-audio"},
		{name: "accents", in: "Küche", want: "kuche"},
		{name: "case folding", in: "STRASSE", want: "strasse"},
		{name: "digits", in: "4K Monitors", want: "4k-monitors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Segment(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Segment("!!!")
	var segErr *InvalidSegmentError
	assert.True(t, errors.As(err, &segErr))
}

func TestSegment_CaseInsensitiveCollision(t *testing.T) {
	a, err := Segment("Phones")
	require.NoError(t, err)
	b, err := Segment("PHONES!")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
