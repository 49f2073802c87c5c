package store

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/serialize"
)

func epochKey(epoch uint64) []byte { return serialize.BigEndianUint64(epoch) }

// InsertNewEpochInfo appends a committee snapshot for a new epoch. Epoch
// numbers must be contiguous; callers are expected to enforce that at the
// reconfiguration boundary (pkg/epoch), not here.
func (s *Store) InsertNewEpochInfo(info EpochInfo) error {
	enc, err := serialize.JSON(info)
	if err != nil {
		return fmt.Errorf("store: encode epoch info %d: %w", info.Epoch, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEpochs).Put(epochKey(info.Epoch), enc)
	})
	if err != nil {
		return fmt.Errorf("store: insert_new_epoch_info %d: %w", info.Epoch, err)
	}
	if archErr := s.archive.ArchiveEpoch(context.Background(), info); archErr != nil {
		s.log.Printf("[store] archive epoch %d: %v", info.Epoch, archErr)
	}
	return nil
}

// GetLastEpochInfo returns the highest-numbered epoch snapshot recorded,
// or false if the store has never seen a reconfiguration.
func (s *Store) GetLastEpochInfo() (EpochInfo, bool, error) {
	var info EpochInfo
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEpochs).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		found = true
		return serialize.FromJSON(v, &info)
	})
	if err != nil {
		return EpochInfo{}, false, fmt.Errorf("store: get_last_epoch_info: %w", err)
	}
	return info, found, nil
}

// GetEpochInfo returns the committee snapshot for a specific epoch.
func (s *Store) GetEpochInfo(epoch uint64) (EpochInfo, error) {
	var info EpochInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketEpochs).Get(epochKey(epoch))
		if v == nil {
			return fmt.Errorf("%w: epoch %d", ErrNotFound, epoch)
		}
		return serialize.FromJSON(v, &info)
	})
	if err != nil {
		return EpochInfo{}, fmt.Errorf("store: get_epoch_info %d: %w", epoch, err)
	}
	return info, nil
}
