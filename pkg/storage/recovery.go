package storage

import (
	"encoding/json"
	"fmt"

	"github.com/aodsql/aodsql/pkg/wal"
)

// recordPayload is the on-the-wire shape of an INSERT/UPDATE/DELETE WAL
// payload, following wal's convention of an 8-byte txn-id prefix (added
// by txn.Manager.LogWrite) ahead of the opaque bytes this package encodes.
type recordPayload struct {
	Table  string        `json:"table"`
	RowID  int64         `json:"row_id"`
	Values []interface{} `json:"values,omitempty"`
}

func encodeRecord(table string, rowID int64, values []interface{}) []byte {
	data, _ := json.Marshal(recordPayload{Table: table, RowID: rowID, Values: values})
	return data
}

func decodeRecord(payload []byte) (recordPayload, error) {
	if len(payload) < 8 {
		return recordPayload{}, fmt.Errorf("WAL payload too short: %d bytes", len(payload))
	}
	var rp recordPayload
	if err := json.Unmarshal(payload[8:], &rp); err != nil {
		return recordPayload{}, err
	}
	return rp, nil
}

// Applier replays WAL records into this Engine's tables on startup,
// implementing wal.Applier. Tables must already exist (the catalog
// snapshot is loaded, and CreateTable called for each, before recovery
// runs) since the WAL carries row data only, not schema.
type Applier struct {
	engine *Engine
}

func NewApplier(e *Engine) *Applier { return &Applier{engine: e} }

func (a *Applier) ApplyRedo(rec *wal.Record) error {
	rp, err := decodeRecord(rec.Payload)
	if err != nil {
		return err
	}
	t, ok := a.engine.Table(rp.Table)
	if !ok {
		return nil // table was later dropped; nothing to replay onto
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch rec.Header.EntryType {
	case wal.EntryInsert, wal.EntryUpdate:
		t.rows[rp.RowID] = &Row{ID: rp.RowID, Values: rp.Values}
		if rp.RowID >= t.nextRowID {
			t.nextRowID = rp.RowID + 1
		}
		for _, idx := range t.indexes {
			idx.add(encodeKey(rp.Values, idx.Columns), rp.RowID)
		}
	case wal.EntryDelete:
		if old, ok := t.rows[rp.RowID]; ok {
			for _, idx := range t.indexes {
				idx.remove(encodeKey(old.Values, idx.Columns), rp.RowID)
			}
			delete(t.rows, rp.RowID)
		}
	}
	return nil
}

// ApplyUndo reverses the effect of an uncommitted transaction's record.
// ApplyRedo only replays committed transactions, so an uncommitted
// transaction's records were never applied during recovery: an INSERT's
// row id is removed if present, and UPDATE and DELETE records are skipped,
// since their payload carries no prior values and the row they touched
// must keep the state the committed transactions' redo left it in.
func (a *Applier) ApplyUndo(rec *wal.Record) error {
	if rec.Header.EntryType != wal.EntryInsert {
		return nil
	}
	rp, err := decodeRecord(rec.Payload)
	if err != nil {
		return err
	}
	t, ok := a.engine.Table(rp.Table)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.rows[rp.RowID]; ok {
		for _, idx := range t.indexes {
			idx.remove(encodeKey(old.Values, idx.Columns), rp.RowID)
		}
		delete(t.rows, rp.RowID)
	}
	return nil
}
