// Package wal implements the write-ahead log: a binary, append-only record
// stream with a fixed header (magic/version/type/LSN/payload length/CRC32)
// and a two-pass redo-then-undo recovery scan. Grounded almost directly on
// bobboyms-storage-engine's wal.Entry framing and Acquire/Release pooling
// (transaction_write.go), adapted from that engine's per-document BSON
// payload to this engine's row-oriented INSERT/UPDATE/DELETE/BEGIN/COMMIT/
// ABORT records, per spec §4.8's "two-pass redo+undo recovery" requirement.
package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// EntryType distinguishes the kinds of record the log carries.
type EntryType uint8

const (
	EntryBegin EntryType = iota + 1
	EntryCommit
	EntryAbort
	EntryInsert
	EntryUpdate
	EntryDelete
	EntryCheckpoint
)

const walMagic uint32 = 0x41514C31 // "AQL1"
const headerSize = 4 + 1 + 1 + 8 + 4 + 4 // magic+version+type+lsn+payloadLen+crc32

// Header is the fixed-size prefix of every record.
type Header struct {
	Magic      uint32
	Version    uint8
	EntryType  EntryType
	LSN        uint64
	PayloadLen uint32
	CRC32      uint32
}

// Record is one WAL entry: a header plus an opaque payload the caller
// encodes. Every record pkg/txn writes starts its payload with the 8-byte
// transaction id; for INSERT/UPDATE/DELETE pkg/storage follows it with the
// table name, row id and the row's new column values (none for DELETE).
// No before-image of the row is stored.
type Record struct {
	Header  Header
	Payload []byte

	// TxnID is not persisted and is not set by pkg/txn's writers; the
	// owning transaction's id travels as the payload's first 8 bytes,
	// which is what recovery reads to group records by transaction.
	TxnID uint64
}

var recordPool = sync.Pool{New: func() any { return &Record{} }}

// Acquire returns a pooled *Record ready for reuse, matching the teacher's
// AcquireEntry/ReleaseEntry convention to avoid an allocation per WAL write.
func Acquire() *Record {
	r := recordPool.Get().(*Record)
	r.Header = Header{}
	r.Payload = r.Payload[:0]
	r.TxnID = 0
	return r
}

// Release returns r to the pool. Callers must not use r afterward.
func Release(r *Record) { recordPool.Put(r) }

func CalculateCRC32(payload []byte) uint32 { return crc32.ChecksumIEEE(payload) }

// LogManager appends records to a single append-only file and tracks the
// monotonically increasing LSN counter and the highest LSN durably synced.
type LogManager struct {
	mu         sync.Mutex
	f          *os.File
	nextLSN    uint64
	flushedLSN uint64
}

// Open opens (creating if absent) the WAL file at path for appending.
func Open(path string) (*LogManager, *dbfmt.Error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, dbfmt.IO(err, "open WAL file %s", path)
	}
	return &LogManager{f: f, nextLSN: 1}, nil
}

func (lm *LogManager) Close() *dbfmt.Error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.f.Close(); err != nil {
		return dbfmt.IO(err, "close WAL file")
	}
	return nil
}

// NextLSN reserves and returns the next log sequence number.
func (lm *LogManager) NextLSN() uint64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lsn := lm.nextLSN
	lm.nextLSN++
	return lsn
}

// Append writes rec to the log file's in-memory buffer (the OS page
// cache); it is not guaranteed durable until FlushToLSN is called, per
// spec §4.8's WAL protocol: a commit must flush before it is acknowledged.
func (lm *LogManager) Append(rec *Record) *dbfmt.Error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	rec.Header.Magic = walMagic
	rec.Header.Version = 1
	rec.Header.PayloadLen = uint32(len(rec.Payload))
	rec.Header.CRC32 = CalculateCRC32(rec.Payload)

	buf := make([]byte, headerSize+len(rec.Payload))
	binary.BigEndian.PutUint32(buf[0:4], rec.Header.Magic)
	buf[4] = rec.Header.Version
	buf[5] = byte(rec.Header.EntryType)
	binary.BigEndian.PutUint64(buf[6:14], rec.Header.LSN)
	binary.BigEndian.PutUint32(buf[14:18], rec.Header.PayloadLen)
	binary.BigEndian.PutUint32(buf[18:22], rec.Header.CRC32)
	copy(buf[headerSize:], rec.Payload)

	if _, err := lm.f.Write(buf); err != nil {
		return dbfmt.IO(err, "append WAL record")
	}
	return nil
}

// FlushToLSN fsyncs the log file, making every record up to and including
// lsn durable. The engine's commit protocol calls this before reporting a
// transaction committed (the WAL-before-ack invariant).
func (lm *LogManager) FlushToLSN(lsn uint64) *dbfmt.Error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.f.Sync(); err != nil {
		return dbfmt.IO(err, "fsync WAL file")
	}
	if lsn > lm.flushedLSN {
		lm.flushedLSN = lsn
	}
	return nil
}

// ReadAll reads every record from the beginning of the log, in LSN order,
// used by recovery's two passes.
func ReadAll(path string) ([]*Record, *dbfmt.Error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbfmt.IO(err, "open WAL file %s for recovery", path)
	}
	defer f.Close()

	var records []*Record
	hdr := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, hdr); err != nil {
			if err == io.EOF {
				break
			}
			return records, dbfmt.IO(err, "read WAL header")
		}
		magic := binary.BigEndian.Uint32(hdr[0:4])
		if magic != walMagic {
			// Torn write at the tail of the log: stop here, per spec
			// §4.8's "recovery truncates at the first corrupt record".
			break
		}
		h := Header{
			Magic:      magic,
			Version:    hdr[4],
			EntryType:  EntryType(hdr[5]),
			LSN:        binary.BigEndian.Uint64(hdr[6:14]),
			PayloadLen: binary.BigEndian.Uint32(hdr[14:18]),
			CRC32:      binary.BigEndian.Uint32(hdr[18:22]),
		}
		payload := make([]byte, h.PayloadLen)
		if h.PayloadLen > 0 {
			if _, err := io.ReadFull(f, payload); err != nil {
				break
			}
		}
		if CalculateCRC32(payload) != h.CRC32 {
			break // corrupt tail record, discard and stop
		}
		records = append(records, &Record{Header: h, Payload: payload})
	}
	return records, nil
}
