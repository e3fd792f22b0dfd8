// Package walstream provides a durable, file-backed entry stream for
// account ledgers, persisting each entry as one record of a segmented
// write-ahead log. Reopening the same directory resumes the stream with its
// full history, so an account replayed over it reproduces its pre-restart
// state exactly.
package walstream

import (
	"bytes"

	"github.com/fatihkck/coinledger/account"
	"github.com/fatihkck/coinledger/txoutcodec"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	// segmentThreshold is the number of entries per WAL segment file.
	segmentThreshold = 10000

	// maxSegments caps the number of retained segment files. The ledger
	// is the system of record, so the cap is set far beyond any
	// realistic history length; gowal prunes the oldest segments past
	// it.
	maxSegments = 1 << 20

	// entryKey is the record key under which every entry is stored. The
	// WAL index alone orders the stream.
	entryKey = "entry"
)

// Stream is an account.EntryStream backed by a write-ahead log on disk.
// Entries are serialized through a caller-chosen codec; the same codec must
// be used for the life of the directory.
type Stream struct {
	wal   *gowal.Wal
	codec txoutcodec.Codec

	// pos is the read cursor, counted in entries from the start. Entry i
	// lives at WAL index i+1, as gowal indexes from one.
	pos int
}

// A compile-time assertion that Stream satisfies the account.EntryStream
// interface.
var _ account.EntryStream = (*Stream)(nil)

// New opens (or creates) the entry stream stored in dir. Writes are synced
// to disk before being acknowledged.
func New(dir string, codec txoutcodec.Codec) (*Stream, error) {
	if codec == nil {
		return nil, errors.New("walstream: codec is required")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "entries_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open entry WAL")
	}

	return &Stream{
		wal:   wal,
		codec: codec,
	}, nil
}

// Rewind moves the read cursor back to the first entry.
func (s *Stream) Rewind() error {
	s.pos = 0
	return nil
}

// ReadNext returns the entry under the cursor and advances past it.
func (s *Stream) ReadNext() (*account.AccountEntry, error) {
	if s.AtEnd() {
		return nil, account.ErrEndOfStream
	}

	_, payload, err := s.wal.Get(uint64(s.pos) + 1)
	if err != nil {
		return nil, errors.Wrapf(err, "read WAL entry %d", s.pos)
	}

	entry, err := account.DeserializeEntry(
		bytes.NewReader(payload), s.codec,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "decode WAL entry %d", s.pos)
	}
	s.pos++

	return entry, nil
}

// WriteNext appends an entry at the end of the stream and syncs it to disk.
func (s *Stream) WriteNext(entry *account.AccountEntry) error {
	if entry == nil {
		return account.ErrNilEntry
	}

	var payload bytes.Buffer
	if err := entry.Serialize(&payload, s.codec); err != nil {
		return errors.Wrap(err, "encode WAL entry")
	}

	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, entryKey, payload.Bytes()); err != nil {
		return errors.Wrapf(err, "write WAL entry %d", next)
	}
	s.pos = s.Len()

	return nil
}

// Position returns the current cursor position.
func (s *Stream) Position() int {
	return s.pos
}

// AtEnd reports whether the cursor is past the last entry.
func (s *Stream) AtEnd() bool {
	return s.pos >= s.Len()
}

// Len returns the number of entries persisted in the stream.
func (s *Stream) Len() int {
	return int(s.wal.CurrentIndex())
}

// Close releases the underlying WAL. The stream must not be used after.
func (s *Stream) Close() error {
	return errors.Wrap(s.wal.Close(), "close entry WAL")
}
