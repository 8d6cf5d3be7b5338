package ingest

import (
	"regexp"
	"strings"

	"safewatch/internal/normalize"
)

var reKV = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)=("[^"]*"|[^\s,;]+)`)

// Parser reads one line of gateway output: a JSON object, or key=value pairs
// where values containing spaces are double-quoted.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) ParseLine(line string) (*normalize.Fields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		list, err := ParseJSONPayload([]byte(trim))
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		list[0].Raw = line
		return list[0], nil
	}
	matches := reKV.FindAllStringSubmatch(trim, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	fields := normalize.NewFields()
	for _, m := range matches {
		fields.Set(m[1], strings.Trim(m[2], `"`))
	}
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}
