// ABOUTME: Locale-aware sort keys for display names
// ABOUTME: Keys are hex-encoded collation keys so plain text ordering follows the locale
package namenorm

import (
	"encoding/hex"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const DefaultLocale = "en-US"

// Collator produces sort keys for the current locale. It is safe for
// concurrent use.
type Collator struct {
	mu     sync.Mutex
	locale string
	c      *collate.Collator
	buf    collate.Buffer
}

func NewCollator(locale string) *Collator {
	c := &Collator{}
	c.SetLocale(locale)
	return c
}

// SetLocale switches the collation rules. Unknown locales fall back to
// DefaultLocale.
func (c *Collator) SetLocale(locale string) {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		locale = DefaultLocale
		tag = language.MustParse(DefaultLocale)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locale = locale
	c.c = collate.New(tag, collate.Loose)
	c.buf.Reset()
}

func (c *Collator) Locale() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locale
}

// Region is the default phone region of the current locale.
func (c *Collator) Region() string {
	return RegionForLocale(c.Locale())
}

// SortKey returns a key whose byte order matches the collation order of s.
func (c *Collator) SortKey(s string) string {
	if s == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.c.KeyFromString(&c.buf, s)
	out := hex.EncodeToString(key)
	c.buf.Reset()
	return out
}

// Compare orders a and b by the current locale.
func (c *Collator) Compare(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.CompareString(a, b)
}
