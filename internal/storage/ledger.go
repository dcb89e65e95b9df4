package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facegate/facegate-go/internal/errors"
)

// Status is the attendance status recorded in a ledger row.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
	StatusAbsent  Status = "Absent"
	StatusExcused Status = "Excused"
)

// ParseStatus validates a status string from the control plane.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return Status(value), nil
	default:
		return "", fmt.Errorf("unknown status %q", value)
	}
}

// AttendanceRecord is one ledger row. The ledger holds at most one row per
// (uid, date) pair.
type AttendanceRecord struct {
	UID        string  `json:"uid"`
	Name       string  `json:"name"`
	Department string  `json:"dept"`
	Date       string  `json:"date"` // 2006-01-02
	Time       string  `json:"time"` // 15:04:05
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes"`
}

// AttendanceQuery filters a day's ledger rows. Zero-valued fields match
// everything.
type AttendanceQuery struct {
	Date       string
	Department string
	Status     Status
	Search     string
}

const ledgerDateFormat = "2006-01-02"

var ledgerHeader = []string{"ID", "Name", "Dept", "Date", "Time", "Status", "Confidence", "Notes"}

// ValidateLedgerDate checks a date string used to address a ledger file.
func ValidateLedgerDate(date string) error {
	if _, err := time.Parse(ledgerDateFormat, date); err != nil {
		return fmt.Errorf("invalid ledger date %q: %w", date, err)
	}
	return nil
}

func ledgerPath(root, date string) string {
	return filepath.Join(root, ledgerDir, "log_"+date+".csv")
}

// LogAttendance appends a match row to the day's ledger unless a row for the
// same uid already exists; the at-most-one-per-day invariant is enforced here
// by scanning the file before the append, not by the caller's cooldown.
// Returns whether a row was written.
func (g *Gateway) LogAttendance(rec AttendanceRecord) (bool, error) {
	if rec.UID == "" || rec.Date == "" {
		return false, errValidation("attendance record uid and date are required")
	}
	if err := ValidateLedgerDate(rec.Date); err != nil {
		return false, errValidation(err.Error())
	}

	if !g.acquire("log_attendance") {
		return false, g.contentionErr("log_attendance")
	}
	defer g.release()

	logged := false
	err := g.withMedium("log_attendance", func(root string) error {
		rows, err := readLedger(ledgerPath(root, rec.Date))
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.UID == rec.UID {
				return nil // already logged today
			}
		}
		if err := appendLedgerRow(ledgerPath(root, rec.Date), rec); err != nil {
			return err
		}
		logged = true
		return nil
	})
	g.metrics.RecordOperation("log_attendance", err)
	if logged {
		g.metrics.RecordLedgerRow()
	}
	return logged, err
}

// QueryAttendance returns a day's ledger rows filtered by department, status
// and a free-text search over uid and name. On lock contention an empty
// result is returned together with the contention error.
func (g *Gateway) QueryAttendance(q AttendanceQuery) ([]AttendanceRecord, error) {
	if err := ValidateLedgerDate(q.Date); err != nil {
		return nil, errValidation(err.Error())
	}

	if !g.acquire("query_attendance") {
		return []AttendanceRecord{}, g.contentionErr("query_attendance")
	}
	defer g.release()

	var rows []AttendanceRecord
	err := g.withMedium("query_attendance", func(root string) error {
		var readErr error
		rows, readErr = readLedger(ledgerPath(root, q.Date))
		return readErr
	})
	g.metrics.RecordOperation("query_attendance", err)
	if err != nil {
		return []AttendanceRecord{}, err
	}

	filtered := make([]AttendanceRecord, 0, len(rows))
	search := strings.ToLower(q.Search)
	for _, row := range rows {
		if q.Department != "" && row.Department != q.Department {
			continue
		}
		if q.Status != "" && row.Status != q.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(row.Name), search) &&
			!strings.Contains(strings.ToLower(row.UID), search) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered, nil
}

// OverrideAttendance inserts or rewrites the (uid, date) row. When a row
// exists its time, status and notes are rewritten in place and the file is
// re-serialized; otherwise a new row is appended. Row count for the day never
// grows past one per uid.
func (g *Gateway) OverrideAttendance(rec AttendanceRecord) error {
	if rec.UID == "" || rec.Date == "" {
		return errValidation("override uid and date are required")
	}
	if err := ValidateLedgerDate(rec.Date); err != nil {
		return errValidation(err.Error())
	}
	if _, err := ParseStatus(string(rec.Status)); err != nil {
		return errValidation(err.Error())
	}

	if !g.acquire("override_attendance") {
		return g.contentionErr("override_attendance")
	}
	defer g.release()

	err := g.withMedium("override_attendance", func(root string) error {
		path := ledgerPath(root, rec.Date)
		rows, err := readLedger(path)
		if err != nil {
			return err
		}
		updated := false
		for i := range rows {
			if rows[i].UID == rec.UID {
				rows[i].Time = rec.Time
				rows[i].Status = rec.Status
				if rec.Notes != "" {
					rows[i].Notes = rec.Notes
				}
				updated = true
				break
			}
		}
		if !updated {
			rows = append(rows, rec)
		}
		return writeLedger(path, rows)
	})
	g.metrics.RecordOperation("override_attendance", err)
	if err == nil {
		g.metrics.RecordLedgerRow()
	}
	return err
}

// ExportDay returns the raw ledger content for a day. A missing ledger
// exports as a bare header so the download is always a valid CSV.
func (g *Gateway) ExportDay(date string) ([]byte, error) {
	if err := ValidateLedgerDate(date); err != nil {
		return nil, errValidation(err.Error())
	}

	if !g.acquire("export_day") {
		return nil, g.contentionErr("export_day")
	}
	defer g.release()

	var content []byte
	err := g.withMedium("export_day", func(root string) error {
		data, err := os.ReadFile(ledgerPath(root, date))
		if err != nil {
			if os.IsNotExist(err) {
				content = headerOnlyCSV()
				return nil
			}
			return err
		}
		content = data
		return nil
	})
	g.metrics.RecordOperation("export_day", err)
	return content, err
}

// ClearDay deletes a day's ledger file. Clearing a day that has no ledger is
// a success.
func (g *Gateway) ClearDay(date string) error {
	if err := ValidateLedgerDate(date); err != nil {
		return errValidation(err.Error())
	}

	if !g.acquire("clear_day") {
		return g.contentionErr("clear_day")
	}
	defer g.release()

	err := g.withMedium("clear_day", func(root string) error {
		err := os.Remove(ledgerPath(root, date))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
	g.metrics.RecordOperation("clear_day", err)
	return err
}

// readLedger parses a day file into typed records. A missing file reads as an
// empty day. Damaged rows are skipped rather than failing the whole read.
func readLedger(path string) ([]AttendanceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []AttendanceRecord{}, nil
		}
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	lines, err := reader.ReadAll()
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryLedger).
			FileContext(path, int64(len(data))).
			Build()
	}

	rows := make([]AttendanceRecord, 0, len(lines))
	for i, line := range lines {
		if i == 0 && len(line) > 0 && line[0] == ledgerHeader[0] {
			continue // header row
		}
		if len(line) < len(ledgerHeader) {
			continue
		}
		confidence, _ := strconv.ParseFloat(line[6], 64)
		rows = append(rows, AttendanceRecord{
			UID:        line[0],
			Name:       line[1],
			Department: line[2],
			Date:       line[3],
			Time:       line[4],
			Status:     Status(line[5]),
			Confidence: confidence,
			Notes:      line[7],
		})
	}
	return rows, nil
}

func recordToLine(rec AttendanceRecord) []string {
	return []string{
		rec.UID,
		rec.Name,
		rec.Department,
		rec.Date,
		rec.Time,
		string(rec.Status),
		strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
		rec.Notes,
	}
}

// appendLedgerRow appends one row, writing the header first when the file
// does not exist yet.
func appendLedgerRow(path string, rec AttendanceRecord) error {
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if newFile {
		if err := writer.Write(ledgerHeader); err != nil {
			return err
		}
	}
	if err := writer.Write(recordToLine(rec)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// writeLedger re-serializes a whole day file, used by the override path.
func writeLedger(path string, rows []AttendanceRecord) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(ledgerHeader); err != nil {
		return err
	}
	for _, rec := range rows {
		if err := writer.Write(recordToLine(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func headerOnlyCSV() []byte {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write(ledgerHeader)
	writer.Flush()
	return buf.Bytes()
}

// ListLedgerDates returns the dates that have a ledger file, newest first not
// guaranteed; callers sort as needed.
func (g *Gateway) ListLedgerDates() ([]string, error) {
	if !g.acquire("list_ledger_dates") {
		return []string{}, g.contentionErr("list_ledger_dates")
	}
	defer g.release()

	var dates []string
	err := g.withMedium("list_ledger_dates", func(root string) error {
		entries, err := os.ReadDir(filepath.Join(root, ledgerDir))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, "log_") && strings.HasSuffix(name, ".csv") {
				dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, "log_"), ".csv"))
			}
		}
		return nil
	})
	g.metrics.RecordOperation("list_ledger_dates", err)
	return dates, err
}
