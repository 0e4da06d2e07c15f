package repository

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/fieldcapture/internal/common"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// IndexKey is the KV key holding every stored session.
const IndexKey = "sessions.index"

//go:embed session_index.schema.json
var indexSchemaJSON []byte

func compileIndexSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("session_index.schema.json", bytes.NewReader(indexSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("session_index.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// decodeIndex validates raw against the index schema and decodes it.
func decodeIndex(schema *jsonschema.Schema, raw []byte) ([]*entity.Session, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", common.ErrCorruptIndex, err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptIndex, err)
	}
	var sessions []*entity.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", common.ErrCorruptIndex, err)
	}
	return sessions, nil
}

func encodeIndex(sessions []*entity.Session) ([]byte, error) {
	if sessions == nil {
		sessions = []*entity.Session{}
	}
	b, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return b, nil
}
