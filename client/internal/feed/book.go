package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Country is the latest known state for one countryCode. Fields absent from
// an update keep their previous value.
type Country map[string]any

// Code returns the record's countryCode, or "" if it has none.
func (c Country) Code() string {
	code, _ := c["countryCode"].(string)
	return code
}

// Update describes what Apply did with one message.
type Update struct {
	// Type is the message's "type" field, or "array" / "record" for
	// untyped payloads.
	Type string

	// Codes lists the countries that changed.
	Codes []string

	// Replaced is true when an array payload replaced the whole book.
	Replaced bool
}

// Book is a thread-safe set of country records keyed by countryCode.
type Book struct {
	mu        sync.RWMutex
	countries map[string]Country
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{countries: make(map[string]Country)}
}

// Apply merges one inbound message into the book.
func (b *Book) Apply(msg []byte) (Update, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return Update{}, fmt.Errorf("feed: empty message")
	}

	if trimmed[0] == '[' {
		var list []Country
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return Update{}, fmt.Errorf("feed: decode array: %w", err)
		}
		return b.replace(list), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return Update{}, fmt.Errorf("feed: decode object: %w", err)
	}

	var typ string
	if raw, ok := obj["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}

	switch {
	case typ == "data":
		var rec Country
		if err := json.Unmarshal(obj["data"], &rec); err != nil {
			return Update{Type: typ}, fmt.Errorf("feed: decode data: %w", err)
		}
		return b.merge(typ, rec), nil
	case typ == "" && obj["countryCode"] != nil:
		var rec Country
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return Update{}, fmt.Errorf("feed: decode record: %w", err)
		}
		return b.merge("record", rec), nil
	default:
		return Update{Type: typ}, nil
	}
}

// Get returns a copy of the record for code.
func (b *Book) Get(code string) (Country, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.countries[code]
	if !ok {
		return nil, false
	}
	return copyCountry(c), true
}

// Codes returns the known country codes in sorted order.
func (b *Book) Codes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.countries))
	for code := range b.countries {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of known countries.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.countries)
}

func (b *Book) merge(typ string, rec Country) Update {
	code := rec.Code()
	if code == "" {
		return Update{Type: typ}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.countries[code]
	if !ok {
		cur = make(Country, len(rec))
		b.countries[code] = cur
	}
	for k, v := range rec {
		cur[k] = v
	}
	return Update{Type: typ, Codes: []string{code}}
}

func (b *Book) replace(list []Country) Update {
	next := make(map[string]Country, len(list))
	codes := make([]string, 0, len(list))
	for _, rec := range list {
		code := rec.Code()
		if code == "" {
			continue
		}
		next[code] = copyCountry(rec)
		codes = append(codes, code)
	}
	b.mu.Lock()
	b.countries = next
	b.mu.Unlock()
	return Update{Type: "array", Codes: codes, Replaced: true}
}

func copyCountry(c Country) Country {
	out := make(Country, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
