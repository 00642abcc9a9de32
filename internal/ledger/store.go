// Package ledger persists attendance records to a spreadsheet workbook with one
// sheet per lecture.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// Sheet identifies one lecture partition inside the workbook.
type Sheet struct {
	Name string
}

// Store owns the workbook file. Every successful mutation rewrites the whole file
// before returning, so all writes go through a single Store per file. A Store that
// only reads never writes the file.
type Store struct {
	path string

	mu     sync.Mutex
	book   *excelize.File
	fresh  bool // workbook not yet on disk; only the placeholder sheet exists
	dirty  bool // in-memory workbook holds changes the file does not
	closed bool
}

// OpenStore loads the workbook at path, or prepares an empty one when the file does
// not exist yet. Nothing is written until the first lecture sheet is opened.
func OpenStore(path string) (*Store, error) {
	book, err := excelize.OpenFile(path)
	if err == nil {
		return &Store{path: path, book: book}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Store{path: path, book: excelize.NewFile(), fresh: true}, nil
}

// Path returns the workbook location.
func (s *Store) Path() string {
	return s.path
}

// Open ensures a sheet named lecture exists and returns its handle. An existing sheet
// is reused; if it is empty it first gets the header row. A missing sheet is created
// with the header row. Any change is written before returning.
func (s *Store) Open(ctx context.Context, lecture string) (Sheet, error) {
	lecture = strings.TrimSpace(lecture)
	if err := validateLecture(lecture); err != nil {
		return Sheet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Sheet{}, ErrClosed
	}

	if name, ok := s.lookup(lecture); ok {
		return s.reuseLocked(name)
	}

	placeholder := ""
	if s.fresh {
		placeholder = s.book.GetSheetName(s.book.GetActiveSheetIndex())
		if err := s.book.SetSheetName(placeholder, lecture); err != nil {
			return Sheet{}, fmt.Errorf("%w: %v", ErrInvalidLecture, err)
		}
	} else {
		idx, err := s.book.NewSheet(lecture)
		if err != nil {
			return Sheet{}, fmt.Errorf("%w: %v", ErrInvalidLecture, err)
		}
		s.book.SetActiveSheet(idx)
	}

	if err := s.writeRow(lecture, 1, headerCells()); err != nil {
		s.undoSheet(lecture, placeholder)
		return Sheet{}, err
	}
	if err := s.commitLocked(); err != nil {
		s.undoSheet(lecture, placeholder)
		s.dirty = false
		return Sheet{}, err
	}

	s.fresh = false
	return Sheet{Name: lecture}, nil
}

// reuseLocked returns an existing sheet, writing the header into it when it has no
// rows so the first record never lands on row 1.
func (s *Store) reuseLocked(name string) (Sheet, error) {
	rows, err := s.book.GetRows(name)
	if err != nil {
		return Sheet{}, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) > 0 {
		return Sheet{Name: name}, nil
	}

	if err := s.writeRow(name, 1, headerCells()); err != nil {
		return Sheet{}, err
	}
	if err := s.commitLocked(); err != nil {
		if s.book.RemoveRow(name, 1) == nil {
			s.dirty = false
		}
		return Sheet{}, err
	}
	return Sheet{Name: name}, nil
}

// ExistingNames returns the names already recorded in sheet, excluding the header.
func (s *Store) ExistingNames(ctx context.Context, sheet Sheet) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(rows))
	for _, row := range dataRows(rows) {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		names[row[0]] = struct{}{}
	}
	return names, nil
}

// Record appends rec to sheet and rewrites the workbook. It fails with
// ErrDuplicateRecord when rec.Name already has a row. If the rewrite fails the
// row is removed again, so a record is either fully persisted or absent.
func (s *Store) Record(ctx context.Context, sheet Sheet, rec Record) error {
	if rec.Name == "" {
		return errors.New("record name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	rows, err := s.rows(sheet)
	if err != nil {
		return err
	}
	for _, row := range dataRows(rows) {
		if len(row) > 0 && row[0] == rec.Name {
			return fmt.Errorf("%w: %q in sheet %q", ErrDuplicateRecord, rec.Name, sheet.Name)
		}
	}

	next := len(rows) + 1
	if err := s.writeRow(sheet.Name, next, rec.cells()); err != nil {
		return err
	}
	if err := s.commitLocked(); err != nil {
		if s.book.RemoveRow(sheet.Name, next) == nil {
			s.dirty = false
		}
		return err
	}
	return nil
}

// Rows returns the parsed attendance records of sheet in sheet order.
func (s *Store) Rows(ctx context.Context, sheet Sheet) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return nil, err
	}

	var records []Record
	for i, row := range dataRows(rows) {
		if len(row) == 0 {
			continue
		}
		rec, err := parseRecord(row, time.Local)
		if err != nil {
			return nil, fmt.Errorf("sheet %q row %d: %w", sheet.Name, i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Lookup returns the handle of an existing lecture sheet without creating it.
func (s *Store) Lookup(lecture string) (Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.lookup(strings.TrimSpace(lecture))
	if !ok {
		return Sheet{}, fmt.Errorf("%w: %q", ErrSheetNotFound, lecture)
	}
	return Sheet{Name: name}, nil
}

// Lectures lists the lecture sheets in workbook order.
func (s *Store) Lectures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh {
		return nil
	}
	return s.book.GetSheetList()
}

// Flush rewrites the workbook when it holds changes the file does not. It is a
// no-op for a Store that has only been read.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked()
}

// Close flushes pending changes and releases the workbook. Closing an unmodified
// Store leaves the file untouched. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	flushErr := s.flushLocked()
	s.closed = true
	return errors.Join(flushErr, s.book.Close())
}

func (s *Store) flushLocked() error {
	if s.closed || s.fresh || !s.dirty {
		return nil
	}
	return s.commitLocked()
}

// commitLocked rewrites the file and clears dirty once it matches the workbook.
func (s *Store) commitLocked() error {
	s.dirty = true
	if err := writeBook(s.path, s.book); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Store) lookup(lecture string) (string, bool) {
	if s.fresh || lecture == "" {
		return "", false
	}
	idx, err := s.book.GetSheetIndex(lecture)
	if err != nil || idx < 0 {
		return "", false
	}
	return s.book.GetSheetName(idx), true
}

func (s *Store) rows(sheet Sheet) ([][]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.lookup(sheet.Name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet.Name)
	}
	rows, err := s.book.GetRows(sheet.Name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet.Name, err)
	}
	return rows, nil
}

func (s *Store) writeRow(sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := s.book.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write sheet %q row %d: %w", sheet, row, err)
	}
	return nil
}

func (s *Store) undoSheet(lecture, placeholder string) {
	if placeholder != "" {
		_ = s.book.SetSheetName(lecture, placeholder)
		_ = s.book.RemoveRow(placeholder, 1)
		return
	}
	_ = s.book.DeleteSheet(lecture)
}

func dataRows(rows [][]string) [][]string {
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

func headerCells() []any {
	cells := make([]any, len(Header))
	for i, h := range Header {
		cells[i] = h
	}
	return cells
}

func validateLecture(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLecture)
	}
	if utf8.RuneCountInString(name) > maxSheetName {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidLecture, name, maxSheetName)
	}
	if strings.ContainsAny(name, `:\/?*[]`) {
		return fmt.Errorf("%w: %q contains one of : \\ / ? * [ ]", ErrInvalidLecture, name)
	}
	if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return fmt.Errorf("%w: %q starts or ends with an apostrophe", ErrInvalidLecture, name)
	}
	return nil
}
