package account

// EntryStream is the capability an account needs from its backing log: a
// sequential, position-addressable, append-only store of entries. The
// account never assumes in-memory storage; any medium honoring this
// contract works, whether file-backed, in-memory, or remote.
//
// A stream carries a single shared cursor. Rewind moves it to the start,
// ReadNext yields the entry under the cursor and advances it, and WriteNext
// appends at the end of the stream and leaves the cursor there.
type EntryStream interface {
	// Rewind moves the cursor back to the first entry.
	Rewind() error

	// ReadNext returns the entry under the cursor and advances past it.
	// Once the cursor is past the last entry, ReadNext returns
	// ErrEndOfStream.
	ReadNext() (*AccountEntry, error)

	// WriteNext appends an entry at the end of the stream.
	WriteNext(*AccountEntry) error

	// Position returns the current cursor position, counted in entries
	// from the start of the stream.
	Position() int

	// AtEnd reports whether the cursor is past the last entry.
	AtEnd() bool
}

// MemoryStream is a slice-backed EntryStream. It is the default backing
// store for fresh accounts and clone targets, and the reference
// implementation of the stream contract for tests.
type MemoryStream struct {
	entries []*AccountEntry
	pos     int
}

// A compile-time assertion that MemoryStream satisfies the EntryStream
// interface.
var _ EntryStream = (*MemoryStream)(nil)

// NewMemoryStream returns an empty in-memory stream.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

// Rewind moves the cursor back to the first entry.
func (m *MemoryStream) Rewind() error {
	m.pos = 0
	return nil
}

// ReadNext returns the entry under the cursor and advances past it.
func (m *MemoryStream) ReadNext() (*AccountEntry, error) {
	if m.pos >= len(m.entries) {
		return nil, ErrEndOfStream
	}

	entry := m.entries[m.pos]
	m.pos++

	return entry, nil
}

// WriteNext appends an entry at the end of the stream.
func (m *MemoryStream) WriteNext(entry *AccountEntry) error {
	if entry == nil {
		return ErrNilEntry
	}

	m.entries = append(m.entries, entry)
	m.pos = len(m.entries)

	return nil
}

// Position returns the current cursor position.
func (m *MemoryStream) Position() int {
	return m.pos
}

// AtEnd reports whether the cursor is past the last entry.
func (m *MemoryStream) AtEnd() bool {
	return m.pos >= len(m.entries)
}
