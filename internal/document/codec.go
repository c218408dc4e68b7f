// Package document reads and writes the documents handed to the privacy
// engine: plain text, JSON, YAML and MessagePack.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec converts between raw bytes and a document: a string for text, or
// nested maps and slices for structured formats.
type Codec interface {
	// Format returns the format handled by the codec.
	Format() Format

	// ContentType returns the MIME type for this codec.
	ContentType() string

	// Decode parses data into a document.
	Decode(data []byte) (any, error)

	// Encode serializes a document.
	Encode(doc any) ([]byte, error)
}

// ForFormat returns the codec of a format.
func ForFormat(f Format) (Codec, error) {
	switch f {
	case FormatText:
		return textCodec{}, nil
	case FormatJSON:
		return jsonCodec{}, nil
	case FormatYAML:
		return yamlCodec{}, nil
	case FormatMsgpack:
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unsupported format %q", f)
}

// Decode parses data with the codec of format. Any failure is returned as a
// *MalformedInputError carrying path.
func Decode(path string, format Format, data []byte) (any, error) {
	c, err := ForFormat(format)
	if err != nil {
		return nil, err
	}
	doc, err := c.Decode(data)
	if err != nil {
		return nil, &MalformedInputError{Path: path, Format: format, Err: err}
	}
	return doc, nil
}

// textCodec passes UTF-8 text through unchanged.
type textCodec struct{}

func (textCodec) Format() Format      { return FormatText }
func (textCodec) ContentType() string { return "text/plain; charset=utf-8" }

func (textCodec) Decode(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	return string(data), nil
}

func (textCodec) Encode(doc any) ([]byte, error) {
	s, ok := doc.(string)
	if !ok {
		return nil, fmt.Errorf("text codec cannot encode %T", doc)
	}
	return []byte(s), nil
}

// jsonCodec keeps numbers as json.Number so they survive unchanged.
type jsonCodec struct{}

func (jsonCodec) Format() Format      { return FormatJSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Decode(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return doc, nil
}

func (jsonCodec) Encode(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type yamlCodec struct{}

func (yamlCodec) Format() Format      { return FormatYAML }
func (yamlCodec) ContentType() string { return "application/yaml" }

func (yamlCodec) Decode(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (yamlCodec) Encode(doc any) ([]byte, error) {
	return yaml.Marshal(doc)
}

type msgpackCodec struct{}

func (msgpackCodec) Format() Format      { return FormatMsgpack }
func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Decode(data []byte) (any, error) {
	var doc any
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if !validStrings(doc) {
		return nil, errInvalidUTF8
	}
	return doc, nil
}

func (msgpackCodec) Encode(doc any) ([]byte, error) {
	return msgpack.Marshal(doc)
}

// validStrings reports whether every string leaf of doc is valid UTF-8.
func validStrings(doc any) bool {
	switch v := doc.(type) {
	case string:
		return utf8.ValidString(v)
	case map[string]any:
		for _, item := range v {
			if !validStrings(item) {
				return false
			}
		}
	case map[any]any:
		for _, item := range v {
			if !validStrings(item) {
				return false
			}
		}
	case []any:
		for _, item := range v {
			if !validStrings(item) {
				return false
			}
		}
	}
	return true
}
