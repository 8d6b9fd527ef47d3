//go:build cgo

package database

import (
	_ "github.com/ibmdb/go_ibm_db"
)
