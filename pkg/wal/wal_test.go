package wal

import (
	"encoding/binary"
	"path/filepath"
	"testing"
)

func payloadFor(txn uint64, extra string) []byte {
	buf := make([]byte, 8+len(extra))
	binary.BigEndian.PutUint64(buf[:8], txn)
	copy(buf[8:], extra)
	return buf
}

func TestAppendAndReadAllRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	lm, err := Open(path)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	rec := Acquire()
	rec.Header.EntryType = EntryInsert
	rec.Header.LSN = lm.NextLSN()
	rec.Payload = payloadFor(1, "row-data")
	if err := lm.Append(rec); err != nil {
		t.Fatalf("append error: %v", err)
	}
	Release(rec)
	if err := lm.FlushToLSN(rec.Header.LSN); err != nil {
		t.Fatalf("flush error: %v", err)
	}
	lm.Close()

	records, rerr := ReadAll(path)
	if rerr != nil {
		t.Fatalf("read error: %v", rerr)
	}
	if len(records) != 1 {
		t.Fatalf("want 1 record, got %d", len(records))
	}
	if records[0].Header.EntryType != EntryInsert {
		t.Fatalf("want EntryInsert, got %v", records[0].Header.EntryType)
	}
}

type fakeApplier struct {
	redone []uint64
	undone []uint64
}

func (f *fakeApplier) ApplyRedo(rec *Record) error {
	f.redone = append(f.redone, rec.Header.LSN)
	return nil
}
func (f *fakeApplier) ApplyUndo(rec *Record) error {
	f.undone = append(f.undone, rec.Header.LSN)
	return nil
}

func TestRecoverRedoesCommittedAndUndoesIncomplete(t *testing.T) {
	records := []*Record{
		{Header: Header{EntryType: EntryBegin, LSN: 1}, Payload: payloadFor(1, "")},
		{Header: Header{EntryType: EntryInsert, LSN: 2}, Payload: payloadFor(1, "a")},
		{Header: Header{EntryType: EntryCommit, LSN: 3}, Payload: payloadFor(1, "")},

		{Header: Header{EntryType: EntryBegin, LSN: 4}, Payload: payloadFor(2, "")},
		{Header: Header{EntryType: EntryInsert, LSN: 5}, Payload: payloadFor(2, "b")},
		{Header: Header{EntryType: EntryUpdate, LSN: 6}, Payload: payloadFor(2, "c")},
		// no commit/abort for txn 2: it must be undone
	}

	app := &fakeApplier{}
	if err := Recover(records, app); err != nil {
		t.Fatalf("recover error: %v", err)
	}
	if len(app.redone) != 1 || app.redone[0] != 2 {
		t.Fatalf("want redo of LSN 2 only, got %v", app.redone)
	}
	if len(app.undone) != 2 || app.undone[0] != 6 || app.undone[1] != 5 {
		t.Fatalf("want undo of LSN 6 then 5 (reverse order), got %v", app.undone)
	}
}

func TestRecoverEmptyLogNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.wal")
	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("unexpected error reading missing WAL: %v", err)
	}
	if records != nil {
		t.Fatalf("want nil records for missing file")
	}
	app := &fakeApplier{}
	if err := Recover(records, app); err != nil {
		t.Fatalf("recover on empty log should not error: %v", err)
	}
}
