package table

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/flowmesh/archiver/internal/message"
)

const filterTableSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["entries"],
  "properties": {
    "description": {"type": "string"},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["message_id", "filters"],
        "properties": {
          "message_id": {"type": "integer", "minimum": 1, "maximum": 4294967295},
          "filters": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["dest", "kind", "n", "x", "o"],
              "properties": {
                "dest": {"type": "integer", "minimum": 0, "maximum": 65535},
                "kind": {"enum": ["sequence", "time"]},
                "n": {"type": "integer", "minimum": 0, "maximum": 65535},
                "x": {"type": "integer", "minimum": 0, "maximum": 65535},
                "o": {"type": "integer", "minimum": 0, "maximum": 65535}
              },
              "additionalProperties": false
            }
          }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

const destinationTableSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["destinations"],
  "properties": {
    "description": {"type": "string"},
    "destinations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["index", "pathname", "basename", "name_kind", "max_size", "max_age"],
        "properties": {
          "index": {"type": "integer", "minimum": 0},
          "pathname": {"type": "string", "minLength": 1},
          "basename": {"type": "string"},
          "extension": {"type": "string"},
          "move_dir": {"type": "string"},
          "name_kind": {"enum": ["count", "time"]},
          "enabled": {"type": "boolean"},
          "max_size": {"type": "integer", "minimum": 1, "maximum": 4294967295},
          "max_age": {"type": "integer", "minimum": 1, "maximum": 4294967295},
          "sequence_base": {"type": "integer", "minimum": 0, "maximum": 4294967295}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var (
	schemaOnce    sync.Once
	filterSchema  *jsonschema.Schema
	destSchema    *jsonschema.Schema
	schemaInitErr error
)

type filterTableFile struct {
	Description string            `json:"description"`
	Entries     []filterEntryFile `json:"entries"`
}

type filterEntryFile struct {
	MessageID uint32       `json:"message_id"`
	Filters   []filterFile `json:"filters"`
}

type filterFile struct {
	Dest uint16 `json:"dest"`
	Kind string `json:"kind"`
	N    uint16 `json:"n"`
	X    uint16 `json:"x"`
	O    uint16 `json:"o"`
}

type destinationTableFile struct {
	Description  string            `json:"description"`
	Destinations []destinationFile `json:"destinations"`
}

type destinationFile struct {
	Index        int    `json:"index"`
	Pathname     string `json:"pathname"`
	Basename     string `json:"basename"`
	Extension    string `json:"extension"`
	MoveDir      string `json:"move_dir"`
	NameKind     string `json:"name_kind"`
	Enabled      bool   `json:"enabled"`
	MaxSize      uint32 `json:"max_size"`
	MaxAge       uint32 `json:"max_age"`
	SequenceBase uint32 `json:"sequence_base"`
}

func compileSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("filter_table.json", strings.NewReader(filterTableSchema)); err != nil {
			schemaInitErr = fmt.Errorf("failed to add filter table schema: %w", err)
			return
		}
		if err := compiler.AddResource("destination_table.json", strings.NewReader(destinationTableSchema)); err != nil {
			schemaInitErr = fmt.Errorf("failed to add destination table schema: %w", err)
			return
		}
		if filterSchema, schemaInitErr = compiler.Compile("filter_table.json"); schemaInitErr != nil {
			return
		}
		destSchema, schemaInitErr = compiler.Compile("destination_table.json")
	})
	return schemaInitErr
}

// validateDocument checks raw JSON against a compiled schema
func validateDocument(schema *jsonschema.Schema, data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("table is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// LoadFilterTable reads a filter table file
func LoadFilterTable(path string, limits Limits) (*FilterTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFilterTable(data, limits)
}

// ParseFilterTable validates and decodes a filter table document
func ParseFilterTable(data []byte, limits Limits) (*FilterTable, error) {
	if err := compileSchemas(); err != nil {
		return nil, err
	}
	if err := validateDocument(filterSchema, data); err != nil {
		return nil, err
	}

	var doc filterTableFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode filter table: %w", err)
	}

	if len(doc.Entries) > limits.FilterEntries {
		return nil, TableBoundsError{Table: "filter", Field: "entries", Count: len(doc.Entries), Max: limits.FilterEntries}
	}

	t := NewFilterTable(limits)
	t.Description = doc.Description
	seen := make(map[uint32]struct{}, len(doc.Entries))

	for i, e := range doc.Entries {
		if _, dup := seen[e.MessageID]; dup {
			return nil, DuplicateMessageError{MessageID: message.MessageID(e.MessageID)}
		}
		seen[e.MessageID] = struct{}{}

		if len(e.Filters) > limits.FiltersPerEntry {
			return nil, TableBoundsError{Table: "filter", Field: "filters", Count: len(e.Filters), Max: limits.FiltersPerEntry}
		}

		t.Entries[i].MessageID = message.MessageID(e.MessageID)
		for j, f := range e.Filters {
			kind := BySequence
			if f.Kind == ByTime.String() {
				kind = ByTime
			}
			t.Entries[i].Filters[j] = Filter{DestIndex: f.Dest, Kind: kind, N: f.N, X: f.X, O: f.O}
		}
	}

	return t, nil
}

// LoadDestinationTable reads a destination table file
func LoadDestinationTable(path string, limits Limits) (*DestinationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDestinationTable(data, limits)
}

// ParseDestinationTable validates and decodes a destination table document
func ParseDestinationTable(data []byte, limits Limits) (*DestinationTable, error) {
	if err := compileSchemas(); err != nil {
		return nil, err
	}
	if err := validateDocument(destSchema, data); err != nil {
		return nil, err
	}

	var doc destinationTableFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode destination table: %w", err)
	}

	t := NewDestinationTable(limits)
	t.Description = doc.Description

	for _, d := range doc.Destinations {
		if d.Index >= limits.Destinations {
			return nil, TableBoundsError{Table: "destination", Field: "index", Count: d.Index, Max: limits.Destinations - 1}
		}
		if t.Destinations[d.Index].Configured() {
			return nil, fmt.Errorf("destination %d defined twice", d.Index)
		}

		if err := checkLength("pathname", d.Pathname, limits.MaxPathLen); err != nil {
			return nil, err
		}
		if err := checkLength("basename", d.Basename, limits.MaxBasenameLen); err != nil {
			return nil, err
		}
		if err := checkLength("extension", d.Extension, limits.MaxExtensionLen); err != nil {
			return nil, err
		}
		if err := checkLength("move_dir", d.MoveDir, limits.MaxPathLen); err != nil {
			return nil, err
		}

		cfg := DestinationConfig{
			Pathname:     d.Pathname,
			Basename:     d.Basename,
			Extension:    d.Extension,
			MoveDir:      d.MoveDir,
			NameKind:     ByCount,
			MaxSize:      d.MaxSize,
			MaxAge:       d.MaxAge,
			SequenceBase: d.SequenceBase,
		}
		if d.NameKind == ByTimeName.String() {
			cfg.NameKind = ByTimeName
		}
		if d.Enabled {
			cfg.Enabled = Enabled
		}
		if err := checkSequenceBase(&cfg, limits); err != nil {
			return nil, err
		}
		t.Destinations[d.Index] = cfg
	}

	return t, nil
}

func checkLength(field, value string, max int) error {
	if len(value) > max {
		return TableBoundsError{Table: "destination", Field: field, Count: len(value), Max: max}
	}
	return nil
}

// checkSequenceBase keeps the wrap target inside the counter range so a wrap
// never lands past MaxSequence again
func checkSequenceBase(d *DestinationConfig, limits Limits) error {
	if d.Configured() && d.SequenceBase > limits.MaxSequence {
		return TableBoundsError{Table: "destination", Field: "sequence_base", Count: int(d.SequenceBase), Max: int(limits.MaxSequence)}
	}
	return nil
}

// TableBoundsError indicates a table file does not fit the static limits
type TableBoundsError struct {
	Table string
	Field string
	Count int
	Max   int
}

func (e TableBoundsError) Error() string {
	return fmt.Sprintf("%s table %s: %d exceeds limit %d", e.Table, e.Field, e.Count, e.Max)
}

// DuplicateMessageError indicates a message type subscribed twice
type DuplicateMessageError struct {
	MessageID message.MessageID
}

func (e DuplicateMessageError) Error() string {
	return fmt.Sprintf("message id 0x%04X appears more than once", uint32(e.MessageID))
}
