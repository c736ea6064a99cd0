package engine

import "errors"

var (
	ErrDatabaseNotFound = errors.New("database not found")
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDocumentNotFound = errors.New("document not found")
	ErrViewNotFound     = errors.New("view not found")
	ErrViewExists       = errors.New("view already exists")
	ErrEngineClosed     = errors.New("engine is closed")
	ErrCorruptRecord    = errors.New("corrupt record")
)
