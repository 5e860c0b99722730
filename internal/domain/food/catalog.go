package food

// TriggerDef is a designer-authored exposure milestone for a food kind.
type TriggerDef struct {
	ID             string `json:"id" yaml:"id"`
	ThresholdYears int    `json:"threshold_years" yaml:"threshold_years"`
	Once           bool   `json:"once" yaml:"once"`
}

// Kind identifies a food definition.
type Kind string

// Definition provides metadata about a food kind.
type Definition struct {
	Kind          Kind         `json:"kind" yaml:"kind"`
	Name          string       `json:"name" yaml:"name"`
	Icon          string       `json:"icon,omitempty" yaml:"icon"`
	Thresholds    Thresholds   `json:"thresholds" yaml:"thresholds"`
	Triggers      []TriggerDef `json:"triggers,omitempty" yaml:"triggers"`
	StartOnPickup bool         `json:"start_on_pickup" yaml:"start_on_pickup"`
}

// Catalog contains all known food kinds.
type Catalog struct {
	defs  map[Kind]Definition
	order []Kind
}

// NewCatalog indexes defs by kind. Later duplicates replace earlier ones.
func NewCatalog(defs []Definition) *Catalog {
	c := &Catalog{defs: make(map[Kind]Definition, len(defs))}
	for _, d := range defs {
		if _, seen := c.defs[d.Kind]; !seen {
			c.order = append(c.order, d.Kind)
		}
		c.defs[d.Kind] = d
	}
	return c
}

// DefaultDefinitions is the food on the default table.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Kind:       "apple",
			Name:       "Apple",
			Icon:       "apple",
			Thresholds: Thresholds{RawToAgedYears: 10, AgedToSpoiledYears: 20},
			Triggers: []TriggerDef{
				{ID: "apple_aged", ThresholdYears: 10, Once: true},
				{ID: "apple_spoiled", ThresholdYears: 30, Once: true},
			},
			StartOnPickup: true,
		},
		{
			Kind:       "cheese",
			Name:       "Cheese",
			Icon:       "cheese",
			Thresholds: Thresholds{RawToAgedYears: 50, AgedToSpoiledYears: 100},
			Triggers: []TriggerDef{
				{ID: "cheese_ripe", ThresholdYears: 50, Once: true},
			},
			StartOnPickup: true,
		},
		{
			Kind:       "wine",
			Name:       "Wine",
			Icon:       "wine",
			Thresholds: Thresholds{RawToAgedYears: 100, AgedToSpoiledYears: 900},
		},
	}
}

// Get returns the definition for a food kind.
func (c *Catalog) Get(k Kind) (Definition, bool) {
	d, ok := c.defs[k]
	return d, ok
}

// All returns every definition in registration order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.defs[k])
	}
	return out
}
