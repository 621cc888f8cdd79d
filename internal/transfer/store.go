// Package transfer holds named multi-arrays and serves them over HTTP.
package transfer

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/karma/pkg/karma"
)

// Entry describes a stored multi-array.
type Entry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int       `json:"size"`
	Packets  []string  `json:"packets"`
	History  int       `json:"history"`
	Modified time.Time `json:"modified"`
}

type record struct {
	entry Entry
	raw   []byte
}

// Store keeps multi-arrays by name in their encoded form, so every Get returns
// an independent copy.
type Store struct {
	opts karma.ReaderOptions
	now  func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

// NewStore returns an empty store. opts bounds what PutRaw accepts.
func NewStore(opts karma.ReaderOptions) *Store {
	return &Store{
		opts:    opts,
		now:     time.Now,
		records: make(map[string]*record),
	}
}

// Put encodes ma and stores it under name, replacing any previous entry.
func (s *Store) Put(name string, ma *karma.MultiArray) (Entry, error) {
	if err := validName(name); err != nil {
		return Entry{}, err
	}
	raw, err := karma.Encode(ma)
	if err != nil {
		return Entry{}, err
	}
	return s.store(name, ma, raw), nil
}

// PutRaw stores an encoded multi-array after checking that it decodes.
func (s *Store) PutRaw(name string, raw []byte) (Entry, error) {
	if err := validName(name); err != nil {
		return Entry{}, err
	}
	ma, err := s.decode(raw)
	if err != nil {
		return Entry{}, err
	}
	return s.store(name, ma, bytes.Clone(raw)), nil
}

func (s *Store) store(name string, ma *karma.MultiArray, raw []byte) Entry {
	e := Entry{
		ID:       "ma_" + uuid.NewString(),
		Name:     name,
		Size:     len(raw),
		Packets:  slices.Clone(ma.Names),
		History:  len(ma.History),
		Modified: s.now().UTC(),
	}
	s.mu.Lock()
	s.records[name] = &record{entry: e, raw: raw}
	s.mu.Unlock()
	return e
}

// Get decodes a fresh copy of the named multi-array. An unknown name yields
// ErrNotFound.
func (s *Store) Get(name string) (*karma.MultiArray, Entry, error) {
	raw, e, ok := s.Raw(name)
	if !ok {
		return nil, Entry{}, fmt.Errorf("%w: no multi-array named %q", ErrNotFound, name)
	}
	ma, err := s.decode(raw)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%w: stored multi-array %q: %w", ErrCorrupt, name, err)
	}
	return ma, e, nil
}

// Raw returns the encoded form of the named multi-array. The caller must not
// modify the returned bytes.
func (s *Store) Raw(name string) ([]byte, Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[name]
	if !ok {
		return nil, Entry{}, false
	}
	return r.raw, r.entry, true
}

// Delete removes the named entry and reports whether it existed.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return false
	}
	delete(s.records, name)
	return true
}

// List returns all entries ordered by name.
func (s *Store) List() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.entry)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Store) decode(raw []byte) (*karma.MultiArray, error) {
	br := bytes.NewReader(raw)
	ma, err := karma.NewReader(br, s.opts).ReadMultiArray()
	if err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", karma.ErrFormat, br.Len())
	}
	return ma, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: invalid name %q", ErrInvalidName, name)
	}
	return nil
}
