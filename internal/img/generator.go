package img

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// Filter is a pixel transform applied to a range of rows. Implementations
// must not modify src.
type Filter interface {
	Apply(src image.Image, rows Rows) *image.NRGBA

	// Name returns the filter name for logging
	Name() string
}

var filters = map[string]func() Filter{
	"grayscale": func() Filter { return &GrayscaleFilter{} },
	"invert":    func() Filter { return &InvertFilter{} },
}

// GetFilter returns the filter registered under name. Lookup is case-insensitive.
func GetFilter(name string) (Filter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	newFilter, ok := filters[name]
	if !ok {
		return nil, fmt.Errorf("unsupported filter: %q (supported: %s)", name, strings.Join(FilterNames(), ", "))
	}
	return newFilter(), nil
}

// FilterNames returns the registered filter names in sorted order.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GrayscaleFilter converts rows to luminance-weighted gray.
type GrayscaleFilter struct{}

func (f *GrayscaleFilter) Apply(src image.Image, rows Rows) *image.NRGBA {
	return applyRows(src, rows, imaging.Grayscale)
}

func (f *GrayscaleFilter) Name() string {
	return "grayscale"
}

// InvertFilter produces the negative of the selected rows.
type InvertFilter struct{}

func (f *InvertFilter) Apply(src image.Image, rows Rows) *image.NRGBA {
	return applyRows(src, rows, imaging.Invert)
}

func (f *InvertFilter) Name() string {
	return "invert"
}
