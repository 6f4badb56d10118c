package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/validation"
)

const (
	utf8BOM       = "\ufeff"
	maxLineLength = 1 << 20
)

var ErrLineTooLong = errors.New("line too long")

// Entry ties an output transaction back to the physical line it came from.
type Entry struct {
	LineNumber int      `json:"line_number"`
	Raw        string   `json:"raw"`
	Warnings   []string `json:"warnings,omitempty"`
}

type ParseResult struct {
	FileName string
	FileType domain.FileType
	BatchNo  string

	// Transactions keeps file order and includes PARSE_ERROR placeholders.
	// Entries is parallel to it.
	Transactions []domain.Transaction
	Entries      []Entry

	TotalCount      int
	ValidCount      int
	ParseErrorCount int

	// LinesRead counts physical lines consumed, header and blank lines included.
	LinesRead    int
	Truncated    bool
	HeaderValid  bool
	HeaderErrors []string
}

// Persistable returns the transactions that may be written to the store.
func (r *ParseResult) Persistable() []domain.Transaction {
	out := make([]domain.Transaction, 0, r.ValidCount)
	for _, t := range r.Transactions {
		if t.Status != domain.StatusParseError {
			out = append(out, t)
		}
	}
	return out
}

type FileParser struct {
	maxLines int
	now      func() time.Time
	logger   *slog.Logger
}

func NewFileParser(cfg config.UploadConfig, logger *slog.Logger) *FileParser {
	maxLines := cfg.MaxLines
	if maxLines <= 0 {
		maxLines = config.DefaultMaxLines
	}
	return &FileParser{
		maxLines: maxLines,
		now:      time.Now,
		logger:   logger,
	}
}

// Parse reads r line by line. The first non-blank line is the header and is
// only checked, never decoded. Reading stops silently after maxLines physical
// lines. On cancellation the records produced so far are returned with ctx.Err().
func (p *FileParser) Parse(ctx context.Context, r io.Reader, fileName string) (*ParseResult, error) {
	meta := MetaFromFileName(fileName, p.now())

	p.logger.Info("Parsing NACH file",
		"file_name", fileName,
		"file_type", meta.FileType,
		"batch_no", meta.BatchNo)

	result := &ParseResult{
		FileName: meta.FileName,
		FileType: meta.FileType,
		BatchNo:  meta.BatchNo,
	}

	br := bufio.NewReader(r)

	headerSeen := false
	for {
		raw, oversized, err := readLine(br, maxLineLength)
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Error("Failed to read NACH file",
				"file_name", fileName,
				"lines_read", result.LinesRead,
				"error", err)
			return result, fmt.Errorf("read %s: %w", fileName, err)
		}

		if err := ctx.Err(); err != nil {
			p.logger.Warn("NACH file parsing cancelled",
				"file_name", fileName,
				"lines_read", result.LinesRead)
			return result, err
		}

		if result.LinesRead >= p.maxLines {
			result.Truncated = true
			p.logger.Warn("NACH file exceeds line limit, remainder not parsed",
				"file_name", fileName,
				"max_lines", p.maxLines)
			break
		}
		result.LinesRead++

		if oversized {
			cause := fmt.Errorf("%w: line exceeds %d bytes", ErrLineTooLong, maxLineLength)
			if !headerSeen {
				headerSeen = true
				result.HeaderErrors = []string{cause.Error()}
				p.logger.Warn("Unexpected NACH header", "file_name", fileName, "error", cause)
				continue
			}
			p.appendParseError(result, Entry{LineNumber: result.LinesRead}, cause, meta)
			continue
		}

		line := strings.ToValidUTF8(raw, "\uFFFD")
		if result.LinesRead == 1 {
			line = strings.TrimPrefix(line, utf8BOM)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !headerSeen {
			headerSeen = true
			header := validation.ValidateHeader(strings.Split(line, FieldSeparator))
			result.HeaderValid = header.Valid
			result.HeaderErrors = header.Errors
			if !header.Valid {
				p.logger.Warn("Unexpected NACH header",
					"file_name", fileName,
					"error", header.Error())
			}
			continue
		}

		entry := Entry{LineNumber: result.LinesRead, Raw: line}
		rec, err := DecodeRecord(line)
		if err != nil {
			p.appendParseError(result, entry, err, meta)
			continue
		}
		entry.Warnings = rec.Warnings
		result.Transactions = append(result.Transactions, rec.ToTransaction(meta))
		result.Entries = append(result.Entries, entry)
		result.ValidCount++
		result.TotalCount++
	}

	p.logger.Info("NACH file parsed",
		"file_name", fileName,
		"total_count", result.TotalCount,
		"valid_count", result.ValidCount,
		"parse_error_count", result.ParseErrorCount,
		"truncated", result.Truncated)

	return result, nil
}

func (p *FileParser) appendParseError(result *ParseResult, entry Entry, cause error, meta FileMeta) {
	p.logger.Debug("Line parsing failed",
		"file_name", result.FileName,
		"line_number", entry.LineNumber,
		"error", cause)
	result.Transactions = append(result.Transactions, ParseErrorPlaceholder(cause, meta))
	result.Entries = append(result.Entries, entry)
	result.ParseErrorCount++
	result.TotalCount++
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed through its newline and reported as oversized with no content.
func readLine(br *bufio.Reader, limit int) (string, bool, error) {
	var (
		buf       []byte
		oversized bool
		started   bool
	)
	for {
		chunk, more, err := br.ReadLine()
		if err != nil {
			if started && err == io.EOF {
				return string(buf), oversized, nil
			}
			return "", false, err
		}
		started = true
		if !oversized {
			if len(buf)+len(chunk) > limit {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !more {
			return string(buf), oversized, nil
		}
	}
}
