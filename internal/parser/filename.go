package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nach-reprocessing/internal/domain"
)

const debitToken = "DR"

var (
	batchTokenPattern   = regexp.MustCompile(`^[A-Z]{2,3}[0-9]{6,}$`)
	batchGenericPattern = regexp.MustCompile(`^[A-Z0-9]{4,}$`)

	// segments present in most bank file names that never identify a batch
	constantSegments = map[string]struct{}{
		"BDBL": {},
		"INW":  {},
	}
)

// DeriveFileType reads the clearing direction from the file name: any "DR"
// makes it a debit file, everything else is credit.
func DeriveFileType(fileName string) domain.FileType {
	if strings.Contains(filepath.Base(fileName), debitToken) {
		return domain.FileTypeDebit
	}
	return domain.FileTypeCredit
}

// ExtractBatchNumber scans the "-" separated segments of the file name (without
// extension) for a batch token such as TPZ000433633. When none qualifies it
// falls back to a placeholder derived from now.
func ExtractBatchNumber(fileName string, now time.Time) string {
	base := filepath.Base(fileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	segments := strings.Split(stem, "-")

	for _, seg := range segments {
		if batchTokenPattern.MatchString(seg) {
			return seg
		}
	}

	for _, seg := range segments {
		if _, skip := constantSegments[seg]; skip {
			continue
		}
		if batchGenericPattern.MatchString(seg) {
			return seg
		}
	}

	prefix := "BTCH"
	if len(base) > 10 {
		prefix = base[:4]
	}
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// FileMeta is the file-level context shared by every line of one file.
type FileMeta struct {
	FileName    string
	FileType    domain.FileType
	BatchNo     string
	ProcessedAt time.Time
}

// MetaFromFileName derives FileMeta from the file name alone.
func MetaFromFileName(fileName string, now time.Time) FileMeta {
	return FileMeta{
		FileName:    fileName,
		FileType:    DeriveFileType(fileName),
		BatchNo:     ExtractBatchNumber(fileName, now),
		ProcessedAt: now,
	}
}
