package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"tabletennis/internal/domain"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// sessionStorage is the part of runtime.NakamaModule the archive needs.
type sessionStorage interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// SessionArchive persists per-user session records in Nakama storage, keyed by
// match lineage, so a match resumed on another node finds its players' seats.
type SessionArchive struct {
	nk sessionStorage
}

// NewSessionArchive creates a session archive backed by Nakama storage.
func NewSessionArchive(nk sessionStorage) *SessionArchive {
	return &SessionArchive{nk: nk}
}

// Save writes records under the match lineage. Records without a user are skipped.
func (a *SessionArchive) Save(ctx context.Context, lineage string, records []domain.PlayerRecord) error {
	if lineage == "" {
		return fmt.Errorf("lineage is required")
	}

	writes := make([]*runtime.StorageWrite, 0, len(records))
	for _, record := range records {
		if record.ClientID == "" {
			continue
		}
		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal session record for %s: %w", record.ClientID, err)
		}
		writes = append(writes, &runtime.StorageWrite{
			Collection:      sessionCollection,
			Key:             lineage,
			UserID:          record.ClientID,
			Value:           string(value),
			PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		})
	}
	if len(writes) == 0 {
		return nil
	}

	if _, err := a.nk.StorageWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to write session records: %w", err)
	}
	return nil
}

// Load reads the record userID had in the match lineage. ok is false when none exists.
func (a *SessionArchive) Load(ctx context.Context, lineage, userID string) (domain.PlayerRecord, bool, error) {
	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: sessionCollection,
		Key:        lineage,
		UserID:     userID,
	}})
	if err != nil {
		return domain.PlayerRecord{}, false, fmt.Errorf("failed to read session record: %w", err)
	}
	if len(objects) == 0 {
		return domain.PlayerRecord{}, false, nil
	}

	var record domain.PlayerRecord
	if err := json.Unmarshal([]byte(objects[0].GetValue()), &record); err != nil {
		return domain.PlayerRecord{}, false, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	record.ClientID = userID
	return record, true, nil
}
