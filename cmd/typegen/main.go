// Command typegen renders one Go row struct per schema descriptor, so that
// projection code referencing columns the export does not declare fails to
// compile instead of producing nulls at runtime.
//
// Regenerate whenever the schema descriptors change:
//
//	typegen -schemas schemas -out internal/ehitypes/tables.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"strings"

	"ehi/internal/schema"
	"ehi/internal/typegen"
)

func main() {
	var (
		schemaDir string
		outPath   string
		pkgName   string
	)

	flag.StringVar(&schemaDir, "schemas", "schemas", "directory of schema descriptor JSON files")
	flag.StringVar(&outPath, "out", "", "output .go file (default stdout)")
	flag.StringVar(&pkgName, "package", "", "package name for the generated file")
	tables := flag.String("tables", "", "comma-separated table names (default all)")

	flag.Parse()

	catalog, err := schema.Load(schemaDir)
	if err != nil {
		fatalf("load schemas: %v", err)
	}

	descs, err := selectDescriptors(catalog, *tables)
	if err != nil {
		fatalf("%v", err)
	}
	if len(descs) == 0 {
		fatalf("no tables in %s", schemaDir)
	}

	src, err := typegen.Emit(descs, typegen.Options{PackageName: pkgName})
	if err != nil {
		fatalf("%v", err)
	}

	if outPath == "" {
		os.Stdout.Write(src)
		return
	}
	if err := os.WriteFile(outPath, src, 0o644); err != nil {
		fatalf("write %s: %v", outPath, err)
	}
	log.Printf("wrote %d struct(s) to %s", len(descs), outPath)
}

// selectDescriptors returns descriptors for the named tables, or all catalog
// tables in catalog order when names is empty.
func selectDescriptors(catalog *schema.Catalog, names string) ([]*schema.TableDescriptor, error) {
	var want []string
	if names == "" {
		want = catalog.Tables()
	} else {
		for _, n := range strings.Split(names, ",") {
			if n = strings.TrimSpace(n); n != "" {
				want = append(want, n)
			}
		}
	}
	descs := make([]*schema.TableDescriptor, 0, len(want))
	for _, name := range want {
		d, err := catalog.Describe(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
