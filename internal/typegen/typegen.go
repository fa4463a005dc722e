// Package typegen generates one statically typed Go row struct per cataloged
// table. Generated code moves column-safety to compile time: projection code
// that references a field no export table declares does not build.
//
// Generation is offline and deterministic: same catalog in, same bytes out.
// It has no runtime behavior; the strict row proxy covers the remaining
// dynamic paths.
package typegen

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"ehi/internal/schema"
)

// Options control emission.
type Options struct {
	// PackageName for the generated file. Defaults to "ehitypes".
	PackageName string

	// Tool is the name recorded in the generated-code header.
	// Defaults to "typegen".
	Tool string
}

func (o *Options) fill() {
	if o.PackageName == "" {
		o.PackageName = "ehitypes"
	}
	if o.Tool == "" {
		o.Tool = "typegen"
	}
}

var fileTmpl = template.Must(template.New("file").Parse(
	`// Code generated by {{.Tool}}. DO NOT EDIT.

package {{.Package}}

{{range .Structs}}{{.}}
{{end}}`))

// Emit renders Go source defining one struct per descriptor, in the order
// given. The output is gofmt-formatted; a descriptor that renders to invalid
// Go is a bug and errors out rather than emitting broken source.
func Emit(descs []*schema.TableDescriptor, opts Options) ([]byte, error) {
	opts.fill()

	structs := make([]string, 0, len(descs))
	for _, d := range descs {
		s, err := renderStruct(d)
		if err != nil {
			return nil, err
		}
		structs = append(structs, s)
	}

	var buf bytes.Buffer
	err := fileTmpl.Execute(&buf, struct {
		Tool    string
		Package string
		Structs []string
	}{Tool: opts.Tool, Package: opts.PackageName, Structs: structs})
	if err != nil {
		return nil, fmt.Errorf("typegen: render: %w", err)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("typegen: generated source does not format: %w", err)
	}
	return src, nil
}

// EmitTable renders a single table's struct as a formatted file.
func EmitTable(d *schema.TableDescriptor, opts Options) ([]byte, error) {
	return Emit([]*schema.TableDescriptor{d}, opts)
}

func renderStruct(d *schema.TableDescriptor) (string, error) {
	name := StructName(d.Name)
	if name == "" {
		return "", fmt.Errorf("typegen: table %q yields empty struct name", d.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// %s is one row of table %s.\n", name, d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "// %s\n", strings.TrimSpace(d.Description))
	}
	fmt.Fprintf(&b, "type %s struct {\n", name)
	seen := map[string]bool{}
	for _, c := range d.Columns {
		fieldName := FieldName(c.Name)
		if fieldName == "" || seen[fieldName] {
			return "", fmt.Errorf("typegen: table %s: column %q yields unusable field name %q", d.Name, c.Name, fieldName)
		}
		seen[fieldName] = true
		fmt.Fprintf(&b, "\t%s %s `db:%q`\n", fieldName, goType(c), c.Name)
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// goType maps the declared storage type to a Go field type. Every export
// column is nullable in practice, so all fields are pointers.
func goType(c schema.ColumnDescriptor) string {
	switch strings.ToUpper(strings.TrimSpace(c.Type)) {
	case "INTEGER":
		return "*int64"
	case "NUMERIC", "FLOAT", "REAL":
		return "*float64"
	default:
		// VARCHAR and all DATETIME variants stay text: the export keeps
		// datetimes as locale-formatted strings, parsed downstream.
		return "*string"
	}
}

// commonInitialisms are kept upper-case in generated names, matching the
// convention linters expect.
var commonInitialisms = map[string]bool{
	"ID": true, "CSN": true, "YN": true, "DTTM": true, "URL": true,
	"HTML": true, "JSON": true, "SQL": true, "UID": true, "MRN": true,
}

// StructName converts a table name to an exported Go type name:
// ORDER_RESULTS -> OrderResults, PATIENT_2 -> Patient2.
func StructName(table string) string {
	return camel(table)
}

// FieldName converts a column name to an exported Go field name:
// PAT_ENC_CSN_ID -> PatEncCSNID.
func FieldName(column string) string {
	return camel(column)
}

func camel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		up := strings.ToUpper(p)
		if commonInitialisms[up] {
			b.WriteString(up)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}
