package engine

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkghub/pkg/problems"
)

func TestParseFlagsDefaults(t *testing.T) {
	flags, err := ParseFlags(url.Values{})
	require.NoError(t, err)

	assert.Nil(t, flags.Limit)
	assert.Zero(t, flags.Offset)
	assert.Nil(t, flags.Sort)
	assert.Nil(t, flags.Epoch)
	assert.False(t, flags.Inline.Active())
	assert.Empty(t, flags.Filters)
}

func TestParseFlagsFull(t *testing.T) {
	q, err := url.ParseQuery("filter=name%3Dexpress&sort=name%3Ddesc&inline=versions&limit=25&offset=50&epoch=3&doc=true&collections=true&specversion=1.0-rc2")
	require.NoError(t, err)

	flags, err := ParseFlags(q)
	require.NoError(t, err)

	require.NotNil(t, flags.Limit)
	assert.Equal(t, 25, *flags.Limit)
	assert.Equal(t, 50, flags.Offset)
	require.NotNil(t, flags.Sort)
	assert.Equal(t, "name", flags.Sort.Attr)
	assert.True(t, flags.Sort.Descending)
	require.NotNil(t, flags.Epoch)
	assert.Equal(t, 3, *flags.Epoch)
	assert.True(t, flags.Inline.Wants("versions"))
	assert.True(t, flags.Doc)
	assert.True(t, flags.Collections)
	assert.Equal(t, "1.0-rc2", flags.SpecVersion)
	assert.Len(t, flags.Filters, 1)
}

func TestParseFlagsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"zero limit", "limit=0"},
		{"negative limit", "limit=-5"},
		{"non-numeric limit", "limit=ten"},
		{"negative offset", "offset=-1"},
		{"bad epoch", "epoch=zero"},
		{"bad sort direction", "sort=name%3Dsideways"},
		{"bad filter", "filter=%3C%3Cinvalid%3E%3E"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q, err := url.ParseQuery(test.query)
			require.NoError(t, err)
			_, err = ParseFlags(q)
			require.Error(t, err)
			assert.True(t, problems.IsKind(err, problems.KindBadRequest))
		})
	}
}
