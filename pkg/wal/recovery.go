package wal

// Applier receives replayed WAL records during recovery. Implemented by
// pkg/storage so recovery stays storage-agnostic: wal only knows how to
// scan and classify records, never how to mutate a table.
type Applier interface {
	ApplyRedo(rec *Record) error
	ApplyUndo(rec *Record) error
}

// Recover performs the spec §4.8 two-pass recovery algorithm:
//
//  1. Analysis+Redo pass: scan the log forward, replaying every
//     INSERT/UPDATE/DELETE whose transaction reached COMMIT, rebuilding
//     the set of transactions that never committed (no COMMIT/ABORT seen).
//  2. Undo pass: scan the records of every uncommitted transaction found
//     in pass one, in reverse LSN order, undoing their effects.
//
// This mirrors ARIES's redo-then-undo shape without a dirty-page table,
// since the engine's storage is wholly in memory or flushed synchronously
// (spec's "no fuzzy checkpoint" simplification, SPEC_FULL.md §10).
func Recover(records []*Record, applier Applier) error {
	committed := map[uint64]bool{}
	aborted := map[uint64]bool{}
	txnRecords := map[uint64][]*Record{}

	for _, rec := range records {
		txn, ok := txnIDOf(rec)
		if !ok {
			continue
		}
		switch rec.Header.EntryType {
		case EntryCommit:
			committed[txn] = true
		case EntryAbort:
			aborted[txn] = true
		case EntryInsert, EntryUpdate, EntryDelete:
			txnRecords[txn] = append(txnRecords[txn], rec)
		}
	}

	// Redo pass: replay every data record belonging to a committed txn, in
	// original (ascending LSN) order.
	for _, rec := range records {
		txn, ok := txnIDOf(rec)
		if !ok {
			continue
		}
		if !committed[txn] {
			continue
		}
		switch rec.Header.EntryType {
		case EntryInsert, EntryUpdate, EntryDelete:
			if err := applier.ApplyRedo(rec); err != nil {
				return err
			}
		}
	}

	// Undo pass: any transaction with data records but no COMMIT must be
	// rolled back, in reverse LSN order, per spec §4.8.
	for txn, recs := range txnRecords {
		if committed[txn] {
			continue
		}
		for i := len(recs) - 1; i >= 0; i-- {
			if err := applier.ApplyUndo(recs[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

// txnIDOf extracts the 8-byte transaction id prefix every data/commit/
// abort payload carries (BEGIN carries it too, but BEGIN records need no
// replay so they're skipped by the switch above).
func txnIDOf(rec *Record) (uint64, bool) {
	if len(rec.Payload) < 8 {
		return 0, false
	}
	var id uint64
	for i := 0; i < 8; i++ {
		id = id<<8 | uint64(rec.Payload[i])
	}
	return id, true
}
