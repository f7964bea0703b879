package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefixLayout = "060102"
	numberLen          = len(numberPrefixLayout) + 3
	maxDailySequence   = 999
)

// NumberPrefix is the YYMMDD part of a ticket number for day.
func NumberPrefix(day time.Time) string { return day.Format(numberPrefixLayout) }

// NextNumber returns prefix followed by one more than the highest sequence
// among used numbers carrying that prefix, or prefix+"001" if none do.
// Entries that are not nine digits long are ignored.
func NextNumber(prefix string, used []string) string {
	highest := 0
	for _, n := range used {
		n = strings.TrimSpace(n)
		if len(n) != numberLen || !strings.HasPrefix(n, prefix) {
			continue
		}
		seq, err := strconv.Atoi(n[len(prefix):])
		if err != nil {
			continue
		}
		highest = max(highest, seq)
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1)
}

// NumberScanner lists numbers already issued with a given prefix, across
// every ticket collection.
type NumberScanner interface {
	NumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

type NumberGenerator struct {
	Scanner NumberScanner
	Log     *slog.Logger
}

// Next issues the next number for day. If the scan fails it falls back to
// prefix+"001" rather than blocking ticket creation; uniqueness is then left
// to the store's key constraint.
func (g NumberGenerator) Next(ctx context.Context, day time.Time) (string, error) {
	prefix := NumberPrefix(day)

	used, err := g.Scanner.NumbersWithPrefix(ctx, prefix)
	if err != nil {
		if g.Log != nil {
			g.Log.Warn("ticket_number_scan_failed", slog.String("prefix", prefix), slog.String("err", err.Error()))
		}
		return prefix + "001", nil
	}

	n := NextNumber(prefix, used)
	if len(n) != numberLen {
		return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, prefix)
	}
	return n, nil
}
