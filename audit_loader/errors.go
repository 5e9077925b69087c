package main

import "errors"

var (
	// ErrNoInputFiles means the input glob matched nothing.
	ErrNoInputFiles = errors.New("no input files")
	// ErrMissingColumn means a required identifier column is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrSchemaMismatch means an input file's columns differ from the first file's.
	ErrSchemaMismatch = errors.New("schema mismatch across input files")
	// ErrUnparsableDate means a present date token did not parse.
	ErrUnparsableDate = errors.New("unparsable date")
	// ErrInvalidRecordCount means a month cell is not an int32 after comma stripping.
	ErrInvalidRecordCount = errors.New("invalid submitted-records value")
	// ErrOutputNotWritable means the Parquet output could not be created or written.
	ErrOutputNotWritable = errors.New("output not writable")
)
