package ledger

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// writeBook replaces the file at path with the full workbook via a synced temp file
// and rename, so readers never observe a partially written store.
func writeBook(path string, book *excelize.File) error {
	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, "hadir-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(temp.Name())

	if _, err := book.WriteTo(temp); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err == nil {
		if err := os.Chmod(temp.Name(), info.Mode()); err != nil {
			return err
		}
	}

	return os.Rename(temp.Name(), path)
}
