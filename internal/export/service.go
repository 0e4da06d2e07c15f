// Package export renders sessions' accepted values as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// SheetName is the worksheet holding the accepted values.
const SheetName = "Values"

// SessionReader loads a stored session.
type SessionReader interface {
	Get(ctx context.Context, id string) (*entity.Session, error)
}

// Service is a tiny façade over the session repository that produces XLSX exports.
type Service struct {
	sessions SessionReader
	dir      string
	logger   *slog.Logger
}

// NewService creates an export service writing files under dir.
func NewService(sessions SessionReader, dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, dir: dir, logger: logger}
}

// ExportSessionXLSX returns the workbook for a stored session.
func (s *Service) ExportSessionXLSX(ctx context.Context, id string) ([]byte, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s.RenderXLSX(sess)
}

// WriteSessionXLSX writes <dir>/<id>.xlsx and returns its path.
func (s *Service) WriteSessionXLSX(ctx context.Context, id string) (string, error) {
	b, err := s.ExportSessionXLSX(ctx, id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("export dir: %w", err)
	}
	out := filepath.Join(s.dir, id+".xlsx")
	tmp := out + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write export: %w", err)
	}
	return out, nil
}

// RenderXLSX builds a one-sheet workbook with a row per accepted value.
func (s *Service) RenderXLSX(sess *entity.Session) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", "error", err)
		}
	}()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)

	headers := []string{"#", "Value", "Kind", "Symbology", "Corroboration", "Session", "Saved At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	savedAt := ""
	if !sess.UpdatedAt.IsZero() {
		savedAt = sess.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for i, v := range sess.AcceptedValues {
		row := i + 2
		write := func(col int, val any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, val)
		}
		kind := string(v.Kind)
		if kind == "" {
			kind = "TEXT"
		}
		write(1, i+1)
		// values are written as strings so leading zeros survive
		write(2, v.Text)
		write(3, kind)
		write(4, string(v.Symbology))
		write(5, truncate(strings.ReplaceAll(v.SecondaryText, "\n", " "), 140))
		write(6, sess.ID)
		write(7, savedAt)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 6)
	_ = f.SetColWidth(SheetName, "B", "B", 32)
	_ = f.SetColWidth(SheetName, "C", "D", 14)
	_ = f.SetColWidth(SheetName, "E", "E", 40)
	_ = f.SetColWidth(SheetName, "F", "F", 38)
	_ = f.SetColWidth(SheetName, "G", "G", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"session_id", sess.ID,
		"rows", len(sess.AcceptedValues),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
