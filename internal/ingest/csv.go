// Package ingest reads and validates tabular transaction input. The engine
// consumes only the resulting validated record list; malformed rows surface
// here as per-row diagnostics and never reach the analyzer.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Expected header columns, in order.
var columns = []string{"tx_id", "sender", "receiver", "amount", "timestamp"}

// RowError is a per-row validation diagnostic. Line numbers are 1-based and
// include the header.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ReadCSV parses the fixed five-column transaction schema. Rows failing
// validation are reported individually and skipped; only a malformed
// header or an unreadable stream fails the whole parse.
func ReadCSV(r io.Reader, tenantID string) ([]domain.Transaction, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(columns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty input: header row is required")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, nil, err
	}

	var (
		transactions []domain.Transaction
		rowErrs      []RowError
		seen         = make(map[string]bool)
		line         = 1
	)

	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if parseErr, ok := err.(*csv.ParseError); ok {
				rowErrs = append(rowErrs, RowError{Line: parseErr.Line, Message: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read failed at line %d: %w", line, err)
		}

		tx, rowErr := parseRow(record, line, seen)
		if rowErr != nil {
			rowErrs = append(rowErrs, *rowErr)
			continue
		}
		tx.TenantID = tenantID
		seen[tx.ID] = true
		transactions = append(transactions, tx)
	}

	return transactions, rowErrs, nil
}

func checkHeader(header []string) error {
	for i, want := range columns {
		if i >= len(header) || strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("invalid header: expected columns %s", strings.Join(columns, ","))
		}
	}
	return nil
}

func parseRow(record []string, line int, seen map[string]bool) (domain.Transaction, *RowError) {
	fail := func(format string, args ...any) (domain.Transaction, *RowError) {
		return domain.Transaction{}, &RowError{Line: line, Message: fmt.Sprintf(format, args...)}
	}

	id := strings.TrimSpace(record[0])
	if id == "" {
		return fail("tx_id is empty")
	}
	if seen[id] {
		return fail("duplicate tx_id %q", id)
	}

	sender := strings.TrimSpace(record[1])
	receiver := strings.TrimSpace(record[2])
	if sender == "" {
		return fail("sender is empty")
	}
	if receiver == "" {
		return fail("receiver is empty")
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return fail("invalid amount %q", record[3])
	}
	if amount < 0 {
		return fail("negative amount %v", amount)
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[4]))
	if err != nil {
		return fail("invalid timestamp %q: must be RFC 3339", record[4])
	}

	return domain.Transaction{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: ts.Truncate(time.Second),
	}, nil
}

// ParseRecords validates API batch records the same way CSV rows are
// validated, returning typed transactions plus per-record diagnostics.
func ParseRecords(records []domain.TransactionRecord, tenantID string) ([]domain.Transaction, []RowError) {
	var (
		transactions []domain.Transaction
		rowErrs      []RowError
		seen         = make(map[string]bool)
	)

	for i, rec := range records {
		raw := []string{rec.ID, rec.Sender, rec.Receiver, strconv.FormatFloat(rec.Amount, 'f', -1, 64), rec.Timestamp}
		tx, rowErr := parseRow(raw, i+1, seen)
		if rowErr != nil {
			rowErrs = append(rowErrs, *rowErr)
			continue
		}
		tx.TenantID = tenantID
		tx.Currency = rec.Currency
		seen[tx.ID] = true
		transactions = append(transactions, tx)
	}

	return transactions, rowErrs
}
