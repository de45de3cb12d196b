package repository

import (
	"fmt"
	"path/filepath"
	"strings"
)

const defaultFilePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// FileDSN converts a filesystem path into an on-disk SQLite DSN with the
// pragmas the ledgers expect. MemoryDSN passes through unchanged.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	switch trimmed {
	case "":
		return "", ErrPathRequired
	case MemoryDSN:
		return "file::memory:?_pragma=busy_timeout(5000)", nil
	}
	if strings.HasPrefix(trimmed, "file:") {
		return trimmed, nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve store path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}
