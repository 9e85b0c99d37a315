package importer

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
)

// ParseLimits bounds the shape of the decoded import file so later stages
// never see unbounded structures. The byte-size ceiling is enforced by the
// caller before the file reaches the parser.
type ParseLimits struct {
	MaxDepth     int // maximum nesting depth of objects/arrays
	MaxStringLen int // maximum byte length of any string or object key
	MaxArrayLen  int // maximum element count of any array
}

// DefaultParseLimits returns the production limits. MaxArrayLen matches the
// largest export we support (about one million player records).
func DefaultParseLimits() ParseLimits {
	return ParseLimits{
		MaxDepth:     64,
		MaxStringLen: 64 * 1024,
		MaxArrayLen:  1_000_000,
	}
}

// ParseFile decodes the import file at path into generic values under the
// given limits. Any structural violation returns an *InputError.
func ParseFile(path string, limits ParseLimits) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, inputErrorf("cannot open import file: %v", err)
	}
	defer f.Close()
	return Parse(bufio.NewReaderSize(f, 1<<20), limits)
}

// Parse decodes one JSON document from r. The top level must be an object
// (the export format is {"players": [...]}).
func Parse(r io.Reader, limits ParseLimits) (map[string]interface{}, error) {
	dec := json.NewDecoder(r)
	// Keep numbers as json.Number so epoch-millisecond timestamps survive
	// without float rounding.
	dec.UseNumber()

	v, err := decodeValue(dec, 0, limits)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, inputErrorf("trailing data after top-level document")
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, inputErrorf("top-level value must be an object")
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder, depth int, limits ParseLimits) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, inputErrorf("unexpected end of document")
		}
		return nil, inputErrorf("malformed JSON: %v", err)
	}
	return decodeToken(dec, tok, depth, limits)
}

func decodeToken(dec *json.Decoder, tok json.Token, depth int, limits ParseLimits) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		if depth >= limits.MaxDepth {
			return nil, inputErrorf("nesting deeper than %d levels", limits.MaxDepth)
		}
		switch t {
		case '{':
			return decodeObject(dec, depth+1, limits)
		case '[':
			return decodeArray(dec, depth+1, limits)
		}
		// '}' and ']' are consumed by decodeObject/decodeArray and never
		// reach here on well-formed input.
		return nil, inputErrorf("malformed JSON: unexpected %q", t.String())
	case string:
		if len(t) > limits.MaxStringLen {
			return nil, inputErrorf("string longer than %d bytes", limits.MaxStringLen)
		}
		return t, nil
	default:
		// json.Number, bool or nil.
		return t, nil
	}
}

func decodeObject(dec *json.Decoder, depth int, limits ParseLimits) (map[string]interface{}, error) {
	obj := make(map[string]interface{})
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, inputErrorf("malformed JSON in object: %v", err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return obj, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, inputErrorf("malformed JSON: object key is not a string")
		}
		if len(key) > limits.MaxStringLen {
			return nil, inputErrorf("object key longer than %d bytes", limits.MaxStringLen)
		}
		val, err := decodeValue(dec, depth, limits)
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
}

func decodeArray(dec *json.Decoder, depth int, limits ParseLimits) ([]interface{}, error) {
	var arr []interface{}
	for dec.More() {
		if len(arr) >= limits.MaxArrayLen {
			return nil, inputErrorf("array longer than %d elements", limits.MaxArrayLen)
		}
		val, err := decodeValue(dec, depth, limits)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	// Consume the closing bracket.
	if _, err := dec.Token(); err != nil {
		return nil, inputErrorf("malformed JSON in array: %v", err)
	}
	return arr, nil
}
