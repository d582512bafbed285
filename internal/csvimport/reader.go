// Package csvimport parses bank-statement CSV exports: semicolon separated,
// Danish number formatting, UTF-8 or Latin-1 encoded.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

// Column headers as exported by the bank.
const (
	colDate            = "Date"
	colPostingDate     = "Date of posting"
	colPostingTime     = "Time of posting"
	colText            = "Text"
	colMessage         = "Message"
	colTransactionType = "Transaction type"
	colCardInfo        = "Card info"
	colAmount          = "Amount"
	colCurrency        = "Currency"
	colSender          = "Sender"
	colReceiver        = "Receiver"
	colNote            = "Note"
	colBalance         = "Balance"
)

// ErrNoHeader is returned for files without a header row.
var ErrNoHeader = errors.New("csv file has no header row")

// Result is the outcome of one parse. Skipped counts rows dropped for being
// malformed; parsing continues past them.
type Result struct {
	Transactions []model.ParsedTransaction
	Skipped      int
}

// Reader parses statement exports.
type Reader struct {
	now func() time.Time
}

// NewReader creates a reader.
func NewReader() *Reader {
	return &Reader{now: time.Now}
}

// ParseFile reads and parses the CSV file at path.
func (r *Reader) ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return r.Parse(f)
}

// Parse reads a whole statement export. Input that is not valid UTF-8 is
// decoded as Latin-1, which covers the Danish bank exports in the wild.
func (r *Reader) Parse(src io.Reader) (*Result, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading csv data: %w", err)
	}
	data, err = decodeToUTF8(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	result := &Result{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}
		if isBlankRecord(record) {
			continue
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		txn := model.ParsedTransaction{
			Date:            r.parseDate(field(colDate), ""),
			PostingDate:     r.parseDate(field(colPostingDate), field(colPostingTime)),
			Text:            field(colText),
			Message:         field(colMessage),
			TransactionType: field(colTransactionType),
			CardInfo:        field(colCardInfo),
			Currency:        field(colCurrency),
			Sender:          field(colSender),
			Receiver:        field(colReceiver),
			Note:            field(colNote),
			RawLine:         strings.Join(record, ";"),
		}
		txn.Amount = parseAmountOrZero(field(colAmount))
		txn.Balance = parseAmountOrZero(field(colBalance))

		result.Transactions = append(result.Transactions, txn)
	}

	return result, nil
}

// parseDate parses a statement date, optionally with a time-of-day column.
// Unparseable dates fall back to the current time rather than dropping the
// row.
func (r *Reader) parseDate(dateStr, timeStr string) time.Time {
	if dateStr == "" {
		return r.now()
	}

	layout := time.DateOnly
	input := dateStr
	if timeStr != "" {
		layout = time.DateTime
		input = dateStr + " " + timeStr
	}

	t, err := time.Parse(layout, input)
	if err != nil {
		return r.now()
	}
	return t
}

// ParseAmount parses the Danish number format: dot as thousands separator,
// comma as decimal separator. "1.234,56" parses to 1234.56.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return decimal.Zero, nil
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return decimal.Zero, fmt.Errorf("invalid decimal format: %q", s)
		}
		s = strings.ReplaceAll(parts[0], ".", "") + "." + parts[1]
	} else {
		s = strings.ReplaceAll(s, ".", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return amount, nil
}

func parseAmountOrZero(s string) decimal.Decimal {
	amount, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// decodeToUTF8 passes valid UTF-8 through untouched and decodes everything
// else as Latin-1 so Danish characters in legacy exports survive.
func decodeToUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return data, nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding csv data: %w", err)
	}
	return decoded, nil
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
