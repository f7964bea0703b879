package ticket

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

type Collection string

const (
	CollectionActive    Collection = "active"
	CollectionCompleted Collection = "completed"
)

// Store is the key-indexed record store the lifecycle engine works against.
// Every method hands out and takes copies; no caller holds a live row.
type Store interface {
	NumberScanner

	// Insert adds a new ticket to the active collection; ErrDuplicate if
	// the number is taken in either collection.
	Insert(ctx context.Context, t Ticket) error
	Get(ctx context.Context, c Collection, number string) (Ticket, error)
	// Replace overwrites an existing ticket in c; ErrNotFound if absent.
	Replace(ctx context.Context, c Collection, t Ticket) error
	// Relocate upserts t into the completed collection, then deletes it
	// from active. Repeating it after a partial failure is safe.
	Relocate(ctx context.Context, t Ticket) error
	List(ctx context.Context, c Collection) ([]Ticket, error)
	MarkExported(ctx context.Context, numbers []string, mark ExportMark) error
	Vocabulary(ctx context.Context) (Vocabulary, error)
}

type InMemoryStore struct {
	mu        sync.RWMutex
	active    map[string]Ticket
	completed map[string]Ticket
	vocab     Vocabulary
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		active:    make(map[string]Ticket),
		completed: make(map[string]Ticket),
	}
}

func (s *InMemoryStore) SetVocabulary(v Vocabulary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocab = v
}

func (s *InMemoryStore) collection(c Collection) map[string]Ticket {
	if c == CollectionCompleted {
		return s.completed
	}
	return s.active
}

func (s *InMemoryStore) NumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, m := range []map[string]Ticket{s.active, s.completed} {
		for n := range m {
			if strings.HasPrefix(n, prefix) {
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) Insert(ctx context.Context, t Ticket) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[t.Number]; ok {
		return ErrDuplicate
	}
	if _, ok := s.completed[t.Number]; ok {
		return ErrDuplicate
	}
	s.active[t.Number] = t.Clone()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, c Collection, number string) (Ticket, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.collection(c)[number]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemoryStore) Replace(ctx context.Context, c Collection, t Ticket) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.collection(c)
	if _, ok := m[t.Number]; !ok {
		return ErrNotFound
	}
	m[t.Number] = t.Clone()
	return nil
}

func (s *InMemoryStore) Relocate(ctx context.Context, t Ticket) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed[t.Number] = t.Clone()
	delete(s.active, t.Number)
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, c Collection) ([]Ticket, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.collection(c)
	out := make([]Ticket, 0, len(m))
	for _, t := range m {
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b Ticket) int { return strings.Compare(a.Number, b.Number) })
	return out, nil
}

func (s *InMemoryStore) MarkExported(ctx context.Context, numbers []string, mark ExportMark) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	at := mark.At.UTC()
	for _, n := range numbers {
		t, ok := s.completed[n]
		if !ok {
			continue
		}
		t.Exported = true
		t.ExportedAt = &at
		t.ExportFile = mark.File
		s.completed[n] = t
	}
	return nil
}

func (s *InMemoryStore) Vocabulary(ctx context.Context) (Vocabulary, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vocab, nil
}
