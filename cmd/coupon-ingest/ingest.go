package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/coupon"
)

const bloomFPR = 0.001

// record is one parsed line: CODE,percent[,maxUsage[,maxDiscount]].
type record struct {
	Code             string
	Percent          decimal.Decimal
	MaxUsage         *int
	MaxDiscountValue *decimal.Decimal
}

func (r record) coupon() coupon.Coupon {
	return coupon.Coupon{
		Code:               r.Code,
		DiscountPercentage: r.Percent,
		MaxUsage:           r.MaxUsage,
		MaxDiscountValue:   r.MaxDiscountValue,
		IsActive:           true,
	}
}

// parseLine parses a single line. Blank lines and # comments yield ok=false.
func parseLine(line string) (rec record, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return record{}, false, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 4 {
		return record{}, false, errors.Errorf("expected 2 to 4 fields, got %d", len(fields))
	}

	rec.Code = coupon.NormalizeCode(fields[0])
	if rec.Code == "" {
		return record{}, false, errors.New("empty code")
	}

	rec.Percent, err = decimal.NewFromString(strings.TrimSpace(fields[1]))
	if err != nil {
		return record{}, false, errors.Wrap(err, "parse percent")
	}
	if rec.Percent.IsNegative() || rec.Percent.GreaterThan(decimal.NewFromInt(100)) {
		return record{}, false, errors.Errorf("percent %s out of range", rec.Percent)
	}

	if len(fields) > 2 && strings.TrimSpace(fields[2]) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || n < 0 {
			return record{}, false, errors.Errorf("invalid max usage %q", fields[2])
		}
		rec.MaxUsage = &n
	}
	if len(fields) > 3 && strings.TrimSpace(fields[3]) != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
		if err != nil || d.IsNegative() {
			return record{}, false, errors.Errorf("invalid max discount %q", fields[3])
		}
		rec.MaxDiscountValue = &d
	}
	return rec, true, nil
}

// parseRecords reads records from r, reporting the line of the first
// malformed entry.
func parseRecords(ctx context.Context, r io.Reader) ([]record, error) {
	var (
		out    []record
		lineNo int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		rec, ok, err := parseLine(scanner.Text())
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		if ok {
			out = append(out, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	return out, nil
}

// readFile streams a gzip-compressed coupon file.
func readFile(ctx context.Context, path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	recs, err := parseRecords(ctx, gz)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return recs, nil
}

// dedupe keeps the first occurrence of every code across batches. A bloom
// filter flags possible repeats in one pass; only flagged codes are then
// counted exactly, so the exact set stays small.
func dedupe(batches [][]record) (unique []record, dups int) {
	var total uint
	for _, b := range batches {
		total += uint(len(b))
	}
	if total == 0 {
		return nil, 0
	}

	filter := bloom.NewWithEstimates(total, bloomFPR)
	suspects := make(map[string]bool)
	for _, b := range batches {
		for _, rec := range b {
			if filter.TestAndAddString(rec.Code) {
				suspects[rec.Code] = false
			}
		}
	}

	unique = make([]record, 0, total)
	for _, b := range batches {
		for _, rec := range b {
			seen, suspect := suspects[rec.Code]
			switch {
			case !suspect:
				unique = append(unique, rec)
			case !seen:
				suspects[rec.Code] = true
				unique = append(unique, rec)
			default:
				dups++
			}
		}
	}
	return unique, dups
}
