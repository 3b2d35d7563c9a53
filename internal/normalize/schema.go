package normalize

import (
	"fmt"
	"strings"
)

// Schema captures the differences between the markup variants served by the
// listing site. Everything else in the pipeline is shared.
type Schema struct {
	Name string

	// SlotSeparator splits a time text into independent slots,
	// e.g. "10:00 to 12:00, 14:00 to 16:00".
	SlotSeparator string

	// TimeSeparator splits one slot into its start and end tokens.
	TimeSeparator string

	// PrefixScheme is prepended to every URL when non-empty. The older markup
	// prints bare host names ("www.example.org"), the newer one full URLs.
	PrefixScheme string
}

var (
	SchemaLegacy = Schema{
		Name:          "legacy",
		SlotSeparator: ",",
		TimeSeparator: "to",
		PrefixScheme:  "http://",
	}
	SchemaCurrent = Schema{
		Name:          "current",
		SlotSeparator: ",",
		TimeSeparator: "-",
		PrefixScheme:  "",
	}
)

// SchemaByName returns the built-in schema with the given name.
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SchemaLegacy.Name:
		return SchemaLegacy, nil
	case SchemaCurrent.Name:
		return SchemaCurrent, nil
	default:
		return Schema{}, fmt.Errorf("normalize: unknown schema %q", name)
	}
}
