package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkghub/pkg/xregistry"
)

func TestParseInline(t *testing.T) {
	tests := []struct {
		name  string
		value string
		wants map[string]bool
		depth int
		all   bool
	}{
		{"single name", "versions", map[string]bool{"versions": true, "meta": false}, 1, false},
		{"comma list", "versions,meta", map[string]bool{"versions": true, "meta": true}, 1, false},
		{"star", "*", map[string]bool{"versions": true, "anything": true}, 1, true},
		{"integer depth", "2", map[string]bool{"versions": true}, 2, true},
		{"zero depth disables", "0", map[string]bool{"versions": false}, 0, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec, err := ParseInline(test.value)
			require.NoError(t, err)
			assert.Equal(t, test.depth, spec.Depth)
			assert.Equal(t, test.all, spec.All)
			for name, want := range test.wants {
				assert.Equal(t, want, spec.Wants(name), "Wants(%s)", name)
			}
		})
	}
}

func TestParseInlineNegativeDepth(t *testing.T) {
	_, err := ParseInline("-1")
	assert.Error(t, err)
}

func TestInlineChildDescent(t *testing.T) {
	spec, err := ParseInline("packages.versions")
	require.NoError(t, err)

	// At the parent level the dotted name selects "packages".
	assert.True(t, spec.Wants("packages"))
	assert.False(t, spec.Wants("versions"))

	child := spec.Child("packages")
	assert.True(t, child.Wants("versions"))
	assert.False(t, child.Wants("packages"))
}

func TestInlineDepthDecrement(t *testing.T) {
	spec, err := ParseInline("2")
	require.NoError(t, err)

	child := spec.Child("packages")
	assert.True(t, child.Wants("versions"))

	grandchild := child.Child("versions")
	assert.False(t, grandchild.Wants("anything"))
}

func TestExpand(t *testing.T) {
	parent := xregistry.Entity{"xid": "/g/x", "name": "x"}
	loaders := map[string]CollectionLoader{
		"versions": func(ctx context.Context) (map[string]xregistry.Entity, error) {
			return map[string]xregistry.Entity{
				"1.0.0": {"versionid": "1.0.0"},
			}, nil
		},
	}

	spec, err := ParseInline("versions")
	require.NoError(t, err)

	out, err := Expand(context.Background(), parent, spec, loaders)
	require.NoError(t, err)

	members, ok := out["versions"].(map[string]xregistry.Entity)
	require.True(t, ok)
	assert.Contains(t, members, "1.0.0")

	// Original entity is untouched.
	assert.NotContains(t, parent, "versions")
}

func TestExpandIgnoresUnknownNames(t *testing.T) {
	parent := xregistry.Entity{"xid": "/g/x"}
	spec, err := ParseInline("bogus")
	require.NoError(t, err)

	out, err := Expand(context.Background(), parent, spec, map[string]CollectionLoader{})
	require.NoError(t, err)
	assert.NotContains(t, out, "bogus")
}

func TestExpandInactiveReturnsSame(t *testing.T) {
	parent := xregistry.Entity{"xid": "/g/x"}
	out, err := Expand(context.Background(), parent, InlineSpec{}, nil)
	require.NoError(t, err)
	assert.Equal(t, parent, out)
}
