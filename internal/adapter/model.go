package adapter

// Model is the adapter's portion of the xRegistry model document: exactly one
// group type with one resource type nested under it.
type Model struct {
	Groups map[string]GroupModel `json:"groups"`
}

// GroupModel declares one group type.
type GroupModel struct {
	Plural    string                   `json:"plural"`
	Singular  string                   `json:"singular"`
	Resources map[string]ResourceModel `json:"resources"`
}

// ResourceModel declares one resource type nested in a group type.
type ResourceModel struct {
	Plural      string `json:"plural"`
	Singular    string `json:"singular"`
	MaxVersions int    `json:"maxversions,omitempty"`
	HasDocument bool   `json:"hasdocument"`
}

// Capabilities is the adapter capability document the bridge merges.
type Capabilities struct {
	APIs         []string `json:"apis"`
	Flags        []string `json:"flags,omitempty"`
	Mutable      bool     `json:"mutable"`
	Pagination   bool     `json:"pagination"`
	Filtering    bool     `json:"filtering"`
	Sort         bool     `json:"sort"`
	Inline       bool     `json:"inline"`
	SpecVersions []string `json:"specversions"`
}

// ModelFor builds the model document for a definition.
func ModelFor(def Definition) Model {
	return Model{
		Groups: map[string]GroupModel{
			def.GroupType: {
				Plural:   def.GroupType,
				Singular: def.GroupSingular,
				Resources: map[string]ResourceModel{
					def.ResourceType: {
						Plural:   def.ResourceType,
						Singular: def.ResourceSingular,
					},
				},
			},
		},
	}
}

// CapabilitiesFor builds the capability document every pkghub adapter
// advertises. The read-only surface is never mutable.
func CapabilitiesFor(def Definition) Capabilities {
	return Capabilities{
		APIs: []string{
			"/",
			"/model",
			"/capabilities",
			"/" + def.GroupType,
		},
		Mutable:      false,
		Pagination:   true,
		Filtering:    true,
		Sort:         true,
		Inline:       true,
		SpecVersions: []string{"1.0-rc2"},
	}
}
