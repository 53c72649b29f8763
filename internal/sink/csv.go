package sink

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"activity-export/internal/common/errors"
)

// CSV writes delimited rows with CRLF line endings.
type CSV struct {
	w          *csv.Writer
	closer     io.Closer
	skipHeader bool
}

func NewCSV(w io.Writer, delimiter rune) *CSV {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	cw.UseCRLF = true
	return &CSV{w: cw}
}

// OpenCSV creates or truncates path. An empty path or "-" writes to stdout.
func OpenCSV(path string, delimiter rune) (*CSV, error) {
	if path == "" || path == "-" {
		return NewCSV(os.Stdout, delimiter), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewSinkWriteError("csv", err)
	}
	s := NewCSV(f, delimiter)
	s.closer = f
	return s, nil
}

// AppendCSV opens path for appending, creating it if needed. The header is
// written only when the file is empty, so a resumed run continues the rows of
// the interrupted one.
func AppendCSV(path string, delimiter rune) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.NewSinkWriteError("csv", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.NewSinkWriteError("csv", err)
	}
	s := NewCSV(f, delimiter)
	s.closer = f
	s.skipHeader = info.Size() > 0
	return s, nil
}

func (s *CSV) WriteHeader(ctx context.Context, columns []string) error {
	if s.skipHeader {
		return nil
	}
	return s.WriteRow(ctx, columns)
}

func (s *CSV) WriteRow(_ context.Context, row []string) error {
	if err := s.w.Write(row); err != nil {
		return errors.NewSinkWriteError("csv", err)
	}
	return nil
}

func (s *CSV) Close(context.Context) error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if closeErr := s.closer.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return errors.NewSinkWriteError("csv", err)
	}
	return nil
}
