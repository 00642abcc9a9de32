package ledger

import "errors"

// ErrDuplicateRecord is returned when a name already has a row in the targeted sheet.
var ErrDuplicateRecord = errors.New("attendance already recorded")

// ErrSheetNotFound is returned when the targeted lecture sheet does not exist in the workbook.
var ErrSheetNotFound = errors.New("lecture sheet not found")

// ErrInvalidLecture indicates the lecture name cannot be used as a sheet name.
var ErrInvalidLecture = errors.New("invalid lecture name")

// ErrMalformedRow is returned when a sheet row cannot be parsed back into a Record.
var ErrMalformedRow = errors.New("malformed attendance row")

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("ledger store closed")
