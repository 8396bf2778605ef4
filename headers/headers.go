package headers

import (
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/text/encoding/charmap"

	"github.com/wippyai/impersonate-engine/errors"
)

// Field is one header name with its values in arrival order.
type Field struct {
	Name   string
	Values []string
}

// Headers is an ordered, multi-valued header set. Names compare
// case-insensitively; the first spelling seen is kept.
type Headers struct {
	index  map[string]int
	fields []Field
}

// New returns an empty header set.
func New() *Headers {
	return &Headers{index: make(map[string]int)}
}

// Add appends a value, keeping value order within the name and first-seen
// order across names.
func (h *Headers) Add(name, value string) {
	key := strings.ToLower(name)
	if i, ok := h.index[key]; ok {
		h.fields[i].Values = append(h.fields[i].Values, value)
		return
	}
	h.index[key] = len(h.fields)
	h.fields = append(h.fields, Field{Name: name, Values: []string{value}})
}

// Get returns the values for name.
func (h *Headers) Get(name string) []string {
	if i, ok := h.index[strings.ToLower(name)]; ok {
		return h.fields[i].Values
	}
	return nil
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.index[strings.ToLower(name)]
	return ok
}

// Fields returns the header fields in order.
func (h *Headers) Fields() []Field {
	return h.fields
}

// Len returns the number of distinct names.
func (h *Headers) Len() int {
	return len(h.fields)
}

// Validate checks every name and value against the HTTP field grammar.
func (h *Headers) Validate() error {
	for _, f := range h.fields {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return errors.InvalidHeader(f.Name, "invalid header name")
		}
		for _, v := range f.Values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return errors.InvalidHeader(f.Name, "invalid header value")
			}
		}
	}
	return nil
}

// Apply adds every value to dst in order.
func (h *Headers) Apply(dst http.Header) {
	for _, f := range h.fields {
		for _, v := range f.Values {
			dst.Add(f.Name, v)
		}
	}
}

// FromHTTP converts response headers. Names are lower-cased and sorted since
// http.Header does not keep arrival order across names; values keep their
// order and multiplicity. Values that are not valid UTF-8 are decoded as
// ISO-8859-1 so every byte survives.
func FromHTTP(src http.Header) *Headers {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	h := New()
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range src[name] {
			h.Add(lower, DecodeValue(v))
		}
	}
	return h
}

// DecodeValue returns raw unchanged when it is valid UTF-8 and its
// ISO-8859-1 reading otherwise.
func DecodeValue(raw string) string {
	if utf8.ValidString(raw) {
		return raw
	}
	s, err := charmap.ISO8859_1.NewDecoder().String(raw)
	if err != nil {
		return strings.ToValidUTF8(raw, string(utf8.RuneError))
	}
	return s
}

// DecodeBytes is DecodeValue for a byte slice.
func DecodeBytes(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return DecodeValue(string(raw))
}
