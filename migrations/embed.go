// Package migrations — SQL-миграции, встроенные в бинарник (применяются по порядку имён: 001, 002, ...).
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
