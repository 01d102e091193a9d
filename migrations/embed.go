// Package migrations embeds the SQL schema applied by `pcmctl migrate`.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

// Files embeds every migration script.
//
//go:embed *.sql
var Files embed.FS

// Names lists the embedded scripts in apply order.
func Names() ([]string, error) {
	names, err := fs.Glob(Files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
