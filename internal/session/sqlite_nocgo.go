//go:build !cgo

package session

import "errors"

// SQLiteAvailable reports whether the binary was built with the sqlite backend
const SQLiteAvailable = false

var errSQLiteUnavailable = errors.New("CGO disabled: sqlite session store not available")

func openSQLite(string) (Store, error) {
	return nil, errSQLiteUnavailable
}
