package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://demoreel.local/schemas/"

var schemaByType = map[string]string{
	TypeHeader:       "header.schema.json",
	TypePlayer:       "player.schema.json",
	TypePlayerRemove: "player_remove.schema.json",
	TypeWorld:        "world.schema.json",
	TypeStringTable:  "string_table.schema.json",
	TypeGameEvent:    "game_event.schema.json",
}

// Validator checks raw lines against the embedded message schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	ents, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(schemaByType))}
	for typ, name := range schemaByType {
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[typ] = s
	}
	return v, nil
}

// Validate checks one line. Lines of unknown type are rejected.
func (v *Validator) Validate(line []byte) error {
	base, err := DecodeBase(line)
	if err != nil {
		return err
	}
	s, ok := v.schemas[base.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, base.Type, err)
	}
	return nil
}
