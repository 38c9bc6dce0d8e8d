// Package manifest parses intake manifests from external systems into sample
// registration requests and imports them asynchronously.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"limscore/pkg/domain"
)

// Kind identifies a supported manifest format.
type Kind string

const (
	KindMetrc             Kind = "metrc"
	KindConfidentCannabis Kind = "confident_cannabis"
)

// ValidKind reports whether k names a supported manifest format.
func ValidKind(k Kind) bool {
	return k == KindMetrc || k == KindConfidentCannabis
}

// RowError describes why one manifest row could not be converted. Row numbers
// are 1-based and count the header.
type RowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// ParsedSample pairs a sample registration request with its manifest row.
type ParsedSample struct {
	Row    int
	Sample domain.Sample
}

// ParseResult carries the converted rows and the per-row failures. A manifest
// with some bad rows still yields every good one.
type ParseResult struct {
	Samples []ParsedSample
	Errors  []RowError
}

// column schemas per manifest kind, matched case-insensitively against the
// header row.
var manifestColumns = map[Kind]map[string]string{
	KindMetrc: {
		"package label": "metrc_id",
		"item name":     "name",
		"facility name": "client",
		"item category": "type",
		"program":       "category",
		"test types":    "tests",
		"weight":        "weight",
	},
	KindConfidentCannabis: {
		"metrc tag":     "metrc_id",
		"sample name":   "name",
		"business name": "client",
		"matrix":        "type",
		"program":       "category",
		"order tests":   "tests",
		"sample weight": "weight",
	},
}

// Parse reads a CSV manifest of the given kind. The first record is the
// header; unknown columns are ignored. Conversion failures are reported per
// row and never abort the remaining rows.
func Parse(r io.Reader, kind Kind) (ParseResult, error) {
	schema, ok := manifestColumns[kind]
	if !ok {
		return ParseResult{}, fmt.Errorf("unknown manifest kind %q", kind)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return ParseResult{}, fmt.Errorf("manifest is empty")
	}
	if err != nil {
		return ParseResult{}, fmt.Errorf("read manifest header: %w", err)
	}
	fields := make(map[string]int)
	for i, name := range header {
		if field, ok := schema[strings.ToLower(strings.TrimSpace(name))]; ok {
			fields[field] = i
		}
	}
	for _, required := range []string{"name", "client", "tests"} {
		if _, ok := fields[required]; !ok {
			return ParseResult{}, fmt.Errorf("manifest is missing a %s column", required)
		}
	}

	var result ParseResult
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row, Reason: err.Error()})
			continue
		}
		sample, rowErrs := convertRow(record, fields, row)
		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			continue
		}
		result.Samples = append(result.Samples, ParsedSample{Row: row, Sample: sample})
	}
	return result, nil
}

func convertRow(record []string, fields map[string]int, row int) (domain.Sample, []RowError) {
	value := func(field string) string {
		idx, ok := fields[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var errs []RowError
	sample := domain.Sample{
		Name:       value("name"),
		ClientName: value("client"),
		Type:       matrixType(value("type")),
		Category:   programCategory(value("category")),
	}
	if sample.Name == "" {
		errs = append(errs, RowError{Row: row, Field: "name", Reason: "must not be blank"})
	}
	if sample.ClientName == "" {
		errs = append(errs, RowError{Row: row, Field: "client", Reason: "must not be blank"})
	}
	if tag := value("metrc_id"); tag != "" {
		sample.MetrcID = &tag
	}
	for _, code := range strings.FieldsFunc(value("tests"), func(r rune) bool { return r == ';' || r == ',' }) {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			sample.RequiredTests = append(sample.RequiredTests, code)
		}
	}
	if len(sample.RequiredTests) == 0 {
		errs = append(errs, RowError{Row: row, Field: "tests", Reason: "at least one test code is required"})
	}
	if raw := value("weight"); raw != "" {
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, RowError{Row: row, Field: "weight", Reason: "not a number: " + raw})
		} else {
			sample.Weight = &weight
		}
	}
	return sample, errs
}

// matrixType maps the manifest matrix description onto a sample type. Unknown
// matrices fall back to Other rather than failing the row.
func matrixType(raw string) domain.SampleType {
	switch strings.ToLower(raw) {
	case "flower", "buds", "usable marijuana":
		return domain.SampleTypeFlower
	case "concentrate", "extract", "oil":
		return domain.SampleTypeConcentrate
	case "edible", "infused edible":
		return domain.SampleTypeEdible
	case "pre-roll", "preroll", "infused pre-roll":
		return domain.SampleTypePreRoll
	default:
		return domain.SampleTypeOther
	}
}

func programCategory(raw string) domain.SampleCategory {
	switch strings.ToLower(raw) {
	case "medical":
		return domain.CategoryMedical
	case "research":
		return domain.CategoryResearch
	default:
		return domain.CategoryAdultUse
	}
}
