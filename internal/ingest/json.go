package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"safewatch/internal/normalize"
)

// ParseJSONPayload decodes a JSON object or array of objects. Numbers keep
// their source text so epoch milliseconds survive.
func ParseJSONPayload(data []byte) ([]*normalize.Fields, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(trim))
	dec.UseNumber()
	if trim[0] == '[' {
		var list []map[string]interface{}
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		out := make([]*normalize.Fields, 0, len(list))
		for _, obj := range list {
			out = append(out, ParseJSONMap(obj))
		}
		return out, nil
	}
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return []*normalize.Fields{ParseJSONMap(obj)}, nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.Fields {
	fields := normalize.NewFields()
	for key, val := range obj {
		if val == nil {
			continue
		}
		fields.Set(key, fmt.Sprint(val))
	}
	return fields
}
