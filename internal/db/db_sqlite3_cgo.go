//go:build cgo && sqlite3_cgo

package db

import _ "github.com/mattn/go-sqlite3"

// cgo build, links the system compiler against the amalgamation
var driver = sqliteDriver{name: "sqlite3", module: "github.com/mattn/go-sqlite3"}
