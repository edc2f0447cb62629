// Package migrations embeds the SQL schema.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Up returns the names and contents of the up migrations in apply order.
func Up() ([]string, []string, error) {
	entries, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(entries)
	bodies := make([]string, 0, len(entries))
	for _, name := range entries {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, nil, err
		}
		bodies = append(bodies, strings.TrimSpace(string(data)))
	}
	return entries, bodies, nil
}
