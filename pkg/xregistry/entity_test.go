package xregistry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple name", "express", false},
		{"scoped npm name", "@types/node", false},
		{"maven coordinates", "org.apache.commons/commons-lang3", false},
		{"pep503 name", "requests-oauthlib", false},
		{"dots and tildes", "a.b~c_d", false},
		{"colon and at", "host:5000@sha", false},
		{"empty", "", true},
		{"space", "left pad", true},
		{"empty path segment", "a//b", true},
		{"shell metacharacters", "rm;-rf", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateID(test.id)
			if test.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntity)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRegistry(t *testing.T) {
	e, err := NewRegistry(Config{
		ID:      "pkghub",
		BaseURL: "http://localhost:8080",
	})
	require.NoError(t, err)

	assert.Equal(t, "/", e.XID())
	assert.Equal(t, "http://localhost:8080/", e.Self())
	assert.Equal(t, "pkghub", e["registryid"])
	assert.Equal(t, SpecVersion, e["specversion"])
	assert.Equal(t, 1, e.Epoch())
}

func TestNewGroupAndResource(t *testing.T) {
	g, err := NewGroup(Config{
		ID:        "npmjs.org",
		ParentXID: "/",
		Plural:    "noderegistries",
		Singular:  "noderegistry",
		BaseURL:   "http://localhost:8080",
		Name:      "npmjs.org",
	})
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org", g.XID())
	assert.Equal(t, "http://localhost:8080/noderegistries/npmjs.org", g.Self())
	assert.Equal(t, "npmjs.org", g["noderegistryid"])

	r, err := NewResource(Config{
		ID:        "express",
		ParentXID: g.XID(),
		Plural:    "packages",
		Singular:  "package",
		BaseURL:   "http://localhost:8080",
		Name:      "express",
	})
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org/packages/express", r.XID())
	assert.Equal(t, "express", r["packageid"])
	assert.True(t, strings.HasSuffix(r.Self(), r.XID()))
}

func TestXIDIsSelfPath(t *testing.T) {
	r, err := NewResource(Config{
		ID:        "org.apache.commons/commons-lang3",
		ParentXID: "/javaregistries/maven-central",
		Plural:    "packages",
		Singular:  "package",
		BaseURL:   "https://example.com/registry",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/registry"+r.XID(), r.Self())
}

func TestNewVersion(t *testing.T) {
	v, err := NewVersion(Config{
		ID:        "4.18.2",
		ParentXID: "/noderegistries/npmjs.org/packages/express",
		Singular:  "package",
		BaseURL:   "http://localhost:8080",
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org/packages/express/versions/4.18.2", v.XID())
	assert.Equal(t, "4.18.2", v["versionid"])
	assert.Equal(t, true, v["isdefault"])
}

func TestNewMeta(t *testing.T) {
	m, err := NewMeta("/noderegistries/npmjs.org/packages/express", "http://localhost:8080", "4.18.2", Config{})
	require.NoError(t, err)

	assert.Equal(t, "/noderegistries/npmjs.org/packages/express/meta", m.XID())
	assert.Equal(t, true, m["readonly"])
	assert.Equal(t, "4.18.2", m["defaultversionid"])
	assert.Equal(t, "http://localhost:8080/noderegistries/npmjs.org/packages/express/versions/4.18.2", m["defaultversionurl"])
}

func TestTimestampsDefaultAndOrder(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	modified := created.Add(time.Hour)

	e, err := NewResource(Config{
		ID:         "requests",
		ParentXID:  "/pythonregistries/pypi.org",
		Plural:     "packages",
		Singular:   "package",
		BaseURL:    "http://localhost:8080",
		CreatedAt:  created,
		ModifiedAt: modified,
	})
	require.NoError(t, err)

	ct, err := time.Parse(time.RFC3339, e["createdat"].(string))
	require.NoError(t, err)
	mt, err := time.Parse(time.RFC3339, e["modifiedat"].(string))
	require.NoError(t, err)
	assert.False(t, mt.Before(ct))

	// modifiedat before createdat is rejected
	_, err = NewResource(Config{
		ID:         "requests",
		ParentXID:  "/pythonregistries/pypi.org",
		Plural:     "packages",
		Singular:   "package",
		BaseURL:    "http://localhost:8080",
		CreatedAt:  modified,
		ModifiedAt: created,
	})
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestEpochDefaultsAndPreserved(t *testing.T) {
	e, err := NewGroup(Config{
		ID:        "nuget.org",
		ParentXID: "/",
		Plural:    "dotnetregistries",
		Singular:  "dotnetregistry",
		BaseURL:   "http://localhost:8080",
		Epoch:     7,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, e.Epoch())
}

func TestAttrDottedPath(t *testing.T) {
	e := Entity{
		"name": "express",
		"labels": map[string]interface{}{
			"team": "web",
		},
	}

	v, ok := e.Attr("labels.team")
	require.True(t, ok)
	assert.Equal(t, "web", v)

	_, ok = e.Attr("labels.missing")
	assert.False(t, ok)

	_, ok = e.Attr("name.sub")
	assert.False(t, ok)
}

func TestSetCollection(t *testing.T) {
	g, err := NewGroup(Config{
		ID:        "pypi.org",
		ParentXID: "/",
		Plural:    "pythonregistries",
		Singular:  "pythonregistry",
		BaseURL:   "http://localhost:8080",
	})
	require.NoError(t, err)

	SetCollection(g, "packages", "http://localhost:8080", 42)
	assert.Equal(t, "http://localhost:8080/pythonregistries/pypi.org/packages", g["packagesurl"])
	assert.Equal(t, 42, g["packagescount"])
}
