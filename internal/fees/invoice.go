package fees

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultInvoicePrefix is used when no prefix is configured.
const DefaultInvoicePrefix = "INV"

const maxInvoiceAttempts = 5

var invoicePattern = regexp.MustCompile(`^([A-Z0-9]+)-(\d{4})-(\d{2})-(\d{5,})$`)

// InvoiceNumber is the parsed form of PREFIX-YYYY-MM-#####.
type InvoiceNumber struct {
	Prefix   string
	Year     int
	Month    time.Month
	Sequence int
}

// String renders the invoice number with a zero padded sequence.
func (n InvoiceNumber) String() string {
	return fmt.Sprintf("%s-%04d-%02d-%05d", n.Prefix, n.Year, int(n.Month), n.Sequence)
}

// Bucket returns the year-month bucket the sequence is scoped to.
func (n InvoiceNumber) Bucket() string {
	return fmt.Sprintf("%04d-%02d", n.Year, int(n.Month))
}

// NormalizePrefix upper-cases the prefix and falls back to DefaultInvoicePrefix.
func NormalizePrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	prefix = strings.Trim(prefix, "-")
	if prefix == "" {
		return DefaultInvoicePrefix
	}
	return prefix
}

// NewInvoiceNumber builds the invoice number for sequence seq issued at t.
func NewInvoiceNumber(prefix string, t time.Time, seq int) InvoiceNumber {
	return InvoiceNumber{
		Prefix:   NormalizePrefix(prefix),
		Year:     t.Year(),
		Month:    t.Month(),
		Sequence: seq,
	}
}

// InvoiceBucket returns the YYYY-MM bucket for t.
func InvoiceBucket(t time.Time) string {
	return t.Format("2006-01")
}

// ParseInvoiceNumber validates and decomposes an invoice number string.
func ParseInvoiceNumber(s string) (InvoiceNumber, error) {
	m := invoicePattern.FindStringSubmatch(s)
	if m == nil {
		return InvoiceNumber{}, fmt.Errorf("%w: malformed invoice number %q", ErrInvalidFee, s)
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	seq, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || seq < 1 {
		return InvoiceNumber{}, fmt.Errorf("%w: malformed invoice number %q", ErrInvalidFee, s)
	}
	return InvoiceNumber{Prefix: m[1], Year: year, Month: time.Month(month), Sequence: seq}, nil
}
