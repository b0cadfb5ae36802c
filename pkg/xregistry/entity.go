package xregistry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SpecVersion is the xRegistry specification version implemented by pkghub.
const SpecVersion = "1.0-rc2"

// ErrInvalidEntity is returned when an entity cannot be constructed, most
// commonly because an id contains characters outside the allowed set.
var ErrInvalidEntity = errors.New("invalid entity")

// idPattern is the allowed character set for a single id path segment.
// Ids may additionally contain "/" between segments (e.g. Maven
// groupId/artifactId), which is validated per segment.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._~:@-]+$`)

// Entity is one xRegistry entity serialized as a JSON object. Attribute names
// are dynamic (e.g. "packageid", "noderegistriesurl"), so entities are maps
// rather than structs; accessors cover the attributes every kind shares.
type Entity map[string]interface{}

// XID returns the entity's path identity, or "" when absent.
func (e Entity) XID() string {
	s, _ := e["xid"].(string)
	return s
}

// Self returns the entity's absolute URL, or "" when absent.
func (e Entity) Self() string {
	s, _ := e["self"].(string)
	return s
}

// Epoch returns the entity's epoch counter, or 0 when absent.
func (e Entity) Epoch() int {
	switch v := e["epoch"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Attr returns a dotted-path attribute of the entity. Path segments traverse
// nested maps; a missing segment yields (nil, false).
func (e Entity) Attr(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(e)
	for _, seg := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]interface{}:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case Entity:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a shallow copy of the entity. Nested collections attached by
// the inline expander are not shared with the original's top level map.
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ValidateID checks one id against the allowed character set. Ids containing
// "/" are validated per path segment.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEntity)
	}
	for _, seg := range strings.Split(id, "/") {
		if !idPattern.MatchString(seg) {
			return fmt.Errorf("%w: id %q contains disallowed characters", ErrInvalidEntity, id)
		}
	}
	return nil
}

// Config is the common configuration record accepted by every entity
// constructor. Optional fields default as documented on each constructor.
type Config struct {
	// ID is the entity's identifier within its parent collection.
	ID string

	// ParentXID is the xid of the containing entity ("" or "/" for the
	// registry root).
	ParentXID string

	// Plural is the collection name the entity lives under (e.g. "packages").
	Plural string

	// Singular is the singular form used for the "<singular>id" attribute
	// (e.g. "package" yields "packageid").
	Singular string

	// BaseURL is the client-facing base URL used to derive "self".
	BaseURL string

	Name          string
	Description   string
	Labels        map[string]string
	Documentation string

	// Epoch defaults to 1. A rebuilt entity may carry a larger value but
	// never a smaller one.
	Epoch int

	// CreatedAt and ModifiedAt default to now; both serialize as RFC3339.
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// XID computes the entity's path identity from its parent and collection.
func (c Config) XID() string {
	parent := strings.TrimSuffix(c.ParentXID, "/")
	return parent + "/" + c.Plural + "/" + c.ID
}

func (c Config) normalize() (Config, error) {
	if err := ValidateID(c.ID); err != nil {
		return c, err
	}
	if c.Epoch <= 0 {
		c.Epoch = 1
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ModifiedAt.IsZero() {
		c.ModifiedAt = c.CreatedAt
	}
	if c.ModifiedAt.Before(c.CreatedAt) {
		return c, fmt.Errorf("%w: modifiedat precedes createdat", ErrInvalidEntity)
	}
	return c, nil
}

// SelfURL joins a base URL and an xid into an absolute self URL.
func SelfURL(baseURL, xid string) string {
	return strings.TrimSuffix(baseURL, "/") + xid
}

// Timestamp renders a time in the RFC3339 form used by every entity.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func base(c Config, xid string) Entity {
	e := Entity{
		"xid":        xid,
		"self":       SelfURL(c.BaseURL, xid),
		"epoch":      c.Epoch,
		"createdat":  Timestamp(c.CreatedAt),
		"modifiedat": Timestamp(c.ModifiedAt),
	}
	if c.Name != "" {
		e["name"] = c.Name
	}
	if c.Description != "" {
		e["description"] = c.Description
	}
	if len(c.Labels) > 0 {
		e["labels"] = c.Labels
	}
	if c.Documentation != "" {
		e["documentation"] = c.Documentation
	}
	return e
}

// NewRegistry constructs the singleton registry root entity. The id becomes
// the "registryid" attribute; the xid is always "/".
func NewRegistry(c Config) (Entity, error) {
	c, err := c.normalize()
	if err != nil {
		return nil, err
	}
	e := base(c, "/")
	e["self"] = strings.TrimSuffix(c.BaseURL, "/") + "/"
	e["registryid"] = c.ID
	e["specversion"] = SpecVersion
	return e, nil
}

// NewGroup constructs a group entity under the registry root.
func NewGroup(c Config) (Entity, error) {
	c, err := c.normalize()
	if err != nil {
		return nil, err
	}
	e := base(c, c.XID())
	e[c.Singular+"id"] = c.ID
	return e, nil
}

// NewResource constructs a resource entity under a group. Ecosystem-specific
// attributes and the versions collection fields are attached by the caller.
func NewResource(c Config) (Entity, error) {
	c, err := c.normalize()
	if err != nil {
		return nil, err
	}
	e := base(c, c.XID())
	e[c.Singular+"id"] = c.ID
	return e, nil
}

// NewVersion constructs a version entity under a resource's "versions"
// collection. VersionID is the id; isDefault marks the resource's default
// version (at most one per resource).
func NewVersion(c Config, isDefault bool) (Entity, error) {
	c.Plural = "versions"
	c, err := c.normalize()
	if err != nil {
		return nil, err
	}
	e := base(c, c.XID())
	e["versionid"] = c.ID
	e["isdefault"] = isDefault
	return e, nil
}

// NewMeta constructs the meta entity hanging off a resource. The resource's
// xid plus "/meta" forms the identity; the entity is always readonly.
func NewMeta(resourceXID, baseURL, defaultVersionID string, c Config) (Entity, error) {
	if c.Epoch <= 0 {
		c.Epoch = 1
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ModifiedAt.IsZero() {
		c.ModifiedAt = c.CreatedAt
	}
	xid := resourceXID + "/meta"
	e := Entity{
		"xid":        xid,
		"self":       SelfURL(baseURL, xid),
		"epoch":      c.Epoch,
		"createdat":  Timestamp(c.CreatedAt),
		"modifiedat": Timestamp(c.ModifiedAt),
		"readonly":   true,
	}
	if defaultVersionID != "" {
		e["defaultversionid"] = defaultVersionID
		e["defaultversionurl"] = SelfURL(baseURL, resourceXID+"/versions/"+defaultVersionID)
		e["defaultversionsticky"] = false
	}
	return e, nil
}

// SetCollection attaches the "<plural>url" and "<plural>count" attribute pair
// advertising a nested collection.
func SetCollection(e Entity, plural, baseURL string, count int) {
	e[plural+"url"] = SelfURL(baseURL, e.XID()+"/"+plural)
	e[plural+"count"] = count
}

// SetRootCollection attaches a collection pair on the registry root, whose
// xid ("/") must not double the slash.
func SetRootCollection(e Entity, plural, baseURL string, count int) {
	e[plural+"url"] = strings.TrimSuffix(baseURL, "/") + "/" + plural
	e[plural+"count"] = count
}
