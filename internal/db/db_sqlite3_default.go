//go:build !sqlite3_cgo

package db

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// pure Go build, sqlite runs as embedded wasm
var driver = sqliteDriver{name: "sqlite3", module: "github.com/ncruces/go-sqlite3"}
