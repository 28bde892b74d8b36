package models

import (
	"sort"
	"strings"
)

// DefaultCategories is used when no category list is configured.
var DefaultCategories = []string{"laptop", "phone"}

// Categories is the extensible set of accepted product categories.
type Categories struct {
	allowed map[string]struct{}
}

// NewCategories builds a registry from names, ignoring blanks and case.
func NewCategories(names ...string) *Categories {
	c := &Categories{allowed: make(map[string]struct{}, len(names))}
	for _, n := range names {
		c.Register(n)
	}
	return c
}

// ParseCategories reads a comma separated list, falling back to the defaults.
func ParseCategories(csv string) *Categories {
	var names []string
	for _, n := range strings.Split(csv, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = DefaultCategories
	}
	return NewCategories(names...)
}

func (c *Categories) Register(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	c.allowed[name] = struct{}{}
}

func (c *Categories) Allowed(name string) bool {
	_, ok := c.allowed[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names returns the registered categories in sorted order.
func (c *Categories) Names() []string {
	out := make([]string, 0, len(c.allowed))
	for n := range c.allowed {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
