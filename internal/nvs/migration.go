package nvs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// badgerKeyRegistry is present only in BadgerDB directories
const badgerKeyRegistry = "KEYREGISTRY"

// MigrateBadgerToPebble converts {dataDir}/nvs from BadgerDB to Pebble
// when it holds a BadgerDB. It is a no-op for fresh or Pebble
// directories. On failure the BadgerDB directory is left untouched.
//
// The badger directory is kept as nvs_badger_backup_{ts} next to the
// new one.
func MigrateBadgerToPebble(dataDir string, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	nvsDir := badgerDir(dataDir)
	if _, err := os.Stat(filepath.Join(nvsDir, badgerKeyRegistry)); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check nvs directory: %w", err)
	}

	logger.Info("BadgerDB nvs detected; migrating to Pebble")

	tmpDir := filepath.Join(dataDir, "nvs_pebble")
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("failed to clean up previous migration attempt: %w", err)
	}

	migrated, err := copyBadgerToPebble(nvsDir, tmpDir, logger)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("migration failed after %d keys: %w", migrated, err)
	}

	backupDir := filepath.Join(dataDir, "nvs_badger_backup_"+time.Now().Format("20060102_150405"))
	if _, err := os.Stat(backupDir); err == nil {
		backupDir += "_2"
	}
	if err := os.Rename(nvsDir, backupDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("failed to rename BadgerDB directory: %w", err)
	}
	if err := os.Rename(tmpDir, nvsDir); err != nil {
		_ = os.Rename(backupDir, nvsDir)
		return fmt.Errorf("failed to rename Pebble directory: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"migrated_keys": migrated,
		"backup_dir":    backupDir,
	}).Info("NVS migration to Pebble complete")
	return nil
}

// copyBadgerToPebble copies every key in one batch; an NVS namespace
// holds a handful of entries.
func copyBadgerToPebble(badgerPath, pebblePath string, logger *logrus.Logger) (int64, error) {
	bdb, err := badger.Open(badger.DefaultOptions(badgerPath).
		WithLogger(newBadgerLogger(logger)).
		WithNumVersionsToKeep(1))
	if err != nil {
		return 0, fmt.Errorf("failed to open BadgerDB for migration: %w", err)
	}
	defer bdb.Close() //nolint:errcheck

	if err := os.MkdirAll(pebblePath, 0755); err != nil {
		return 0, fmt.Errorf("failed to create Pebble migration directory: %w", err)
	}
	pdb, err := openPebbleDB(pebblePath, logger)
	if err != nil {
		return 0, err
	}
	defer pdb.Close() //nolint:errcheck

	batch := pdb.NewBatch()
	defer batch.Close() //nolint:errcheck

	var total int64
	err = bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read BadgerDB value for key %q: %w", key, err)
			}
			if err := batch.Set(key, val, nil); err != nil {
				return fmt.Errorf("failed to write key %q to Pebble batch: %w", key, err)
			}
			total++
		}
		return nil
	})
	if err != nil {
		return total, err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return total, fmt.Errorf("failed to commit Pebble batch: %w", err)
	}
	return total, nil
}
