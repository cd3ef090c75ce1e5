package cdf

import "errors"

var (
	// ErrFormat indicates a bad magic number, unsupported version, unknown
	// type tag, or a truncated or otherwise corrupt header.
	ErrFormat = errors.New("invalid CDF format")
	// ErrType indicates a type that is not one of the six classic types.
	ErrType = errors.New("unsupported data type")
	// ErrIntegrity indicates a variable referencing an undeclared dimension or
	// using the record dimension anywhere but the leading axis.
	ErrIntegrity = errors.New("header integrity violation")
	// ErrRecordDimension indicates a second unlimited dimension.
	ErrRecordDimension = errors.New("record dimension already defined")
	// ErrDefineMode indicates a header change after offsets were fixed.
	ErrDefineMode = errors.New("header is no longer in define mode")
	// ErrExists indicates a duplicate dimension or variable name.
	ErrExists = errors.New("name already defined")
	// ErrNotFound indicates an unknown dimension, variable or attribute.
	ErrNotFound = errors.New("not found")
	// ErrShape indicates a value whose length does not match the target shape.
	ErrShape = errors.New("shape mismatch")
	// ErrRange indicates a record or element index outside the stored data.
	ErrRange = errors.New("index out of range")
	// ErrReadOnly indicates a write to a file opened with ModeRead.
	ErrReadOnly = errors.New("file is read-only")
	// ErrClosed indicates use of a closed file.
	ErrClosed = errors.New("file is closed")
)
