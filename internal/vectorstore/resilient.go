package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chromem names collection directories with an 8-character hex SHA256 prefix.
var collectionHashPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// newResilientChromemDB opens the persistent DB, quarantining collections
// whose metadata gob is missing so one corrupt namespace does not block
// startup. A quarantined namespace reads as unprovisioned afterwards; the
// next index pass recreates and refills it.
func newResilientChromemDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}

	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	corrupt, findErr := findCorruptCollections(path, logger)
	if findErr != nil {
		logger.Error("failed to scan for corrupt collections", zap.Error(findErr))
		return nil, err
	}
	if len(corrupt) == 0 {
		return nil, err
	}

	quarantinePath := filepath.Join(path, ".quarantine")
	if mkErr := os.MkdirAll(quarantinePath, 0755); mkErr != nil {
		logger.Error("failed to create quarantine directory", zap.Error(mkErr))
		return nil, err
	}

	for _, hash := range corrupt {
		// Hash format gate keeps the rename inside the store directory.
		if !collectionHashPattern.MatchString(hash) {
			logger.Error("invalid collection hash format, skipping", zap.String("hash", hash))
			continue
		}

		src := filepath.Join(path, hash)
		dst := filepath.Join(quarantinePath, hash)

		logger.Warn("quarantining corrupt collection",
			zap.String("collection_hash", hash),
			zap.String("from", src),
			zap.String("to", dst),
		)

		if mvErr := os.Rename(src, dst); mvErr != nil {
			logger.Error("failed to quarantine collection",
				zap.String("collection_hash", hash),
				zap.Error(mvErr),
			)
		}
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		logger.Error("chromem DB still failing after quarantine", zap.Error(err))
		return nil, err
	}

	logger.Info("chromem DB loaded after quarantine",
		zap.Int("quarantined_count", len(corrupt)),
	)
	return db, nil
}

// findCorruptCollections identifies collection directories that hold document
// gobs but lack the metadata file chromem writes first.
func findCorruptCollections(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		collectionPath := filepath.Join(path, entry.Name())
		metadataPath := filepath.Join(collectionPath, "00000000.gob")

		if _, err := os.Stat(metadataPath); !os.IsNotExist(err) {
			continue
		}

		files, readErr := os.ReadDir(collectionPath)
		if readErr != nil {
			logger.Warn("failed to read collection directory during corruption scan",
				zap.String("collection_hash", entry.Name()),
				zap.Error(readErr),
			)
			continue
		}

		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				logger.Warn("found corrupt collection, missing metadata but has documents",
					zap.String("collection_hash", entry.Name()),
				)
				corrupt = append(corrupt, entry.Name())
				break
			}
		}
	}

	return corrupt, nil
}
