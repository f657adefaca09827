// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package tmcm

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVCatalogParser reads and writes parameter catalogs as CSV, so tables for
// other module variants can be maintained outside the code.
type CSVCatalogParser struct {
	headers []string
}

// NewCSVCatalogParser creates a new CSV catalog parser
func NewCSVCatalogParser() *CSVCatalogParser {
	return &CSVCatalogParser{
		headers: []string{"name", "code", "scope", "description"},
	}
}

// ParseCSV parses CSV data into catalog entries. The header row is
// required; "scope" and "description" columns are optional and the scope
// defaults to axis.
func (p *CSVCatalogParser) ParseCSV(reader io.Reader) ([]CatalogEntry, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, field := range []string{"name", "code"} {
		if _, exists := headerMap[field]; !exists {
			return nil, fmt.Errorf("missing required field in CSV header: %s", field)
		}
	}

	entries := make([]CatalogEntry, 0, len(records)-1)
	for i, record := range records[1:] {
		entry, err := p.parseEntryFromRecord(record, headerMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+2, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (p *CSVCatalogParser) parseEntryFromRecord(record []string, headerMap map[string]int) (CatalogEntry, error) {
	getField := func(fieldName string) string {
		if idx, exists := headerMap[fieldName]; exists && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	entry := CatalogEntry{
		Name:        getField("name"),
		Description: getField("description"),
		Scope:       ScopeAxis,
	}
	if entry.Name == "" {
		return entry, fmt.Errorf("'name' is required")
	}

	codeStr := getField("code")
	if codeStr == "" {
		return entry, fmt.Errorf("'code' is required")
	}
	base := 10
	if strings.HasPrefix(strings.ToLower(codeStr), "0x") {
		base, codeStr = 16, codeStr[2:]
	}
	code, err := strconv.ParseUint(codeStr, base, 8)
	if err != nil {
		return entry, fmt.Errorf("invalid code '%s': %w", codeStr, err)
	}
	entry.Code = Parameter(code)

	if s := getField("scope"); s != "" {
		scope, err := ParseScope(s)
		if err != nil {
			return entry, err
		}
		entry.Scope = scope
	}
	return entry, nil
}

// LoadCatalog parses CSV data into a new Catalog.
func (p *CSVCatalogParser) LoadCatalog(reader io.Reader) (*Catalog, error) {
	entries, err := p.ParseCSV(reader)
	if err != nil {
		return nil, err
	}
	c := NewCatalog()
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ToCSV writes both scopes of a catalog, axis parameters first.
func (p *CSVCatalogParser) ToCSV(c *Catalog, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	if err := csvWriter.Write(p.headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, scope := range []Scope{ScopeAxis, ScopeGlobal} {
		for _, e := range c.Entries(scope) {
			record := []string{e.Name, strconv.Itoa(int(e.Code)), string(e.Scope), e.Description}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record for parameter %s: %w", e.Name, err)
			}
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ParseCSVFromString parses CSV data from a string
func (p *CSVCatalogParser) ParseCSVFromString(csvData string) ([]CatalogEntry, error) {
	return p.ParseCSV(strings.NewReader(csvData))
}

// ToCSVString converts a catalog to a CSV string
func (p *CSVCatalogParser) ToCSVString(c *Catalog) (string, error) {
	var builder strings.Builder
	if err := p.ToCSV(c, &builder); err != nil {
		return "", err
	}
	return builder.String(), nil
}
