package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// EventValidator validates CloudEvent payloads against the schemas of an
// AsyncAPI document.
type EventValidator struct {
	prefix   string
	schemas  map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
}

// CloudEvent is the structured-mode envelope as read off the wire.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            string          `json:"time,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

type document struct {
	AsyncAPI   string             `yaml:"asyncapi"`
	Info       info               `yaml:"info"`
	Channels   map[string]channel `yaml:"channels"`
	Components components         `yaml:"components"`
}

type info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

type channel struct {
	Address  string         `yaml:"address"`
	Messages map[string]any `yaml:"messages"`
}

type components struct {
	Schemas map[string]any `yaml:"schemas"`
}

func NewEventValidator(path, typePrefix string) (*EventValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AsyncAPI spec: %w", err)
	}
	return NewEventValidatorFromBytes(data, typePrefix)
}

// NewEventValidatorFromBytes compiles every components.schemas entry named
// <Subject><Verb>Data and registers it under typePrefix.subject.verb, so
// SessionLockedData with prefix "opname" validates "opname.session.locked".
func NewEventValidatorFromBytes(spec []byte, typePrefix string) (*EventValidator, error) {
	var doc document
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	v := &EventValidator{
		prefix:   typePrefix,
		schemas:  make(map[string]*jsonschema.Schema),
		compiler: jsonschema.NewCompiler(),
	}
	for name, schema := range doc.Components.Schemas {
		eventType := v.eventType(name)
		if eventType == "" {
			continue
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		if err := v.register(eventType, "asyncapi://schemas/"+name, raw); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}
	return v, nil
}

func (v *EventValidator) register(eventType, uri string, raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := v.compiler.AddResource(uri, parsed); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := v.compiler.Compile(uri)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	v.schemas[eventType] = compiled
	return nil
}

// RegisterSchema adds a schema for an event type not covered by the document.
func (v *EventValidator) RegisterSchema(eventType string, schemaJSON []byte) error {
	return v.register(eventType, "custom://schemas/"+eventType, schemaJSON)
}

// ValidateEvent checks the envelope and validates data against its schema.
func (v *EventValidator) ValidateEvent(event CloudEvent) error {
	if event.SpecVersion != "1.0" {
		return fmt.Errorf("unsupported specversion %q", event.SpecVersion)
	}
	if event.ID == "" || event.Source == "" || event.Type == "" {
		return fmt.Errorf("id, source and type are required")
	}
	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("event data is required")
	}

	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(event.Data))
	if err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}
	return nil
}

func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	return v.ValidateEvent(event)
}

func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

func (v *EventValidator) SupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for t := range v.schemas {
		types = append(types, t)
	}
	return types
}

func (v *EventValidator) eventType(schemaName string) string {
	name, ok := strings.CutSuffix(schemaName, "Data")
	if !ok || name == "" {
		return ""
	}
	var words []string
	start := 0
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, strings.ToLower(name[start:i]))
			start = i
		}
	}
	words = append(words, strings.ToLower(name[start:]))
	if len(words) < 2 {
		return ""
	}
	return v.prefix + "." + strings.Join(words, ".")
}
