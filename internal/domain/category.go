// Package domain holds the value types shared by the extraction pipeline.
package domain

import (
	"fmt"
	"strings"
)

// Category is one of the five canonical illustratable categories.
type Category string

// Canonical categories.
const (
	CategoryLocation   Category = "location"
	CategoryCharacter  Category = "character"
	CategoryAtmosphere Category = "atmosphere"
	CategoryObject     Category = "object"
	CategoryAction     Category = "action"
)

// AllCategories lists the canonical categories in their documented order.
var AllCategories = []Category{
	CategoryLocation,
	CategoryCharacter,
	CategoryAtmosphere,
	CategoryObject,
	CategoryAction,
}

// Valid reports whether c is a canonical category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLocation, CategoryCharacter, CategoryAtmosphere, CategoryObject, CategoryAction:
		return true
	default:
		return false
	}
}

// ParseCategory parses a canonical category name, case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
