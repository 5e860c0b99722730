package config

import (
	invopop "github.com/invopop/jsonschema"
)

// GenerateSchema reflects the JSON Schema for scene files from the Config types.
func GenerateSchema() *invopop.Schema {
	r := invopop.Reflector{
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(new(Config))
	s.Title = "Time Rooms scene"
	s.Description = "Clock rates, rooms, food, spawners, altar and kitchen for a Time Rooms session."
	return s
}
