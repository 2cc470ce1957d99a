package cityscore

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVHeader returns the export column order: the record id, the remaining
// source fields in declared order, then the derived bucket columns.
func (t *Table) CSVHeader() []string {
	header := make([]string, 0, len(t.fields)+len(DerivedColumns)+1)
	header = append(header, FieldRecordID)
	for _, f := range t.fields {
		if f == FieldRecordID || isDerived(f) {
			continue
		}
		header = append(header, f)
	}
	for _, c := range DerivedColumns {
		header = append(header, string(c))
	}
	return header
}

// WriteCSV writes the table in record id order. Unknown values are written as
// empty cells; the output is byte-identical for identical tables.
func (t *Table) WriteCSV(w io.Writer) error {
	rows, err := t.Select(Query{})
	if err != nil {
		return err
	}

	header := t.CSVHeader()
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for i := range rows {
		for j, name := range header {
			record[j] = cell(&rows[i], name)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", rows[i].RecordID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func cell(o *Observation, name string) string {
	if col, ok := columns[Column(name)]; ok {
		return col.format(o)
	}
	return o.Extra[name]
}

func isDerived(field string) bool {
	for _, c := range DerivedColumns {
		if string(c) == field {
			return true
		}
	}
	return false
}
