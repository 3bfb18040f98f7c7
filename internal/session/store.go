package session

import (
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// Store is the single owner of session records. All mutations are serialized
// and flushed to the backend before they return; a failed flush leaves the
// in-memory table unchanged.
type Store struct {
	mu      sync.Mutex
	backend Backend
	records map[string]Record
	logger  *utils.LogsManager
}

// NewStore loads the persisted table. A missing or unreadable table never
// fails construction; the store starts empty and the problem is logged.
func NewStore(backend Backend, logger *utils.LogsManager) *Store {
	s := &Store{
		backend: backend,
		records: make(map[string]Record),
		logger:  logger,
	}

	records, err := backend.Load()
	if err != nil {
		s.logger.Warn(fmt.Sprintf("Failed to load session store, starting empty: %v", err), "session")
		return s
	}

	for _, r := range records {
		if r.Account == "" || r.Topic == "" {
			s.logger.Warn(fmt.Sprintf("Skipping invalid session record for account %q", r.Account), "session")
			continue
		}
		s.records[r.Account] = r
	}

	s.logger.Info(fmt.Sprintf("Loaded %d session records", len(s.records)), "session")
	return s
}

// Put stores the record for account, replacing any previous one. A topic
// backs at most one live record, so other accounts bound to the same topic
// are dropped.
func (s *Store) Put(account, topic string, expiry int64) error {
	if account == "" || topic == "" {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(records map[string]Record) {
		for acc, r := range records {
			if r.Topic == topic && acc != account {
				delete(records, acc)
			}
		}
		records[account] = Record{Account: account, Topic: topic, Expiry: expiry}
	})
}

func (s *Store) Get(account string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[account]
	return r, ok
}

// Delete removes the record for account. Deleting a missing record is a no-op.
func (s *Store) Delete(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[account]; !ok {
		return nil
	}
	return s.mutate(func(records map[string]Record) {
		delete(records, account)
	})
}

// DeleteByTopic removes every record bound to topic and returns how many
// were removed.
func (s *Store) DeleteByTopic(topic string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, r := range s.records {
		if r.Topic == topic {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	err := s.mutate(func(records map[string]Record) {
		for acc, r := range records {
			if r.Topic == topic {
				delete(records, acc)
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ListAll returns a copy of every record ordered by account.
func (s *Store) ListAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotList(s.records)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// mutate applies fn to a copy of the table, flushes it and swaps it in.
// Callers hold s.mu.
func (s *Store) mutate(fn func(records map[string]Record)) error {
	next := maps.Clone(s.records)
	fn(next)

	if err := s.backend.Save(s.snapshotList(next)); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to flush session store: %v", err), "session")
		return fmt.Errorf("failed to persist sessions: %w", err)
	}

	s.records = next
	return nil
}

func (s *Store) snapshotList(records map[string]Record) []Record {
	list := make([]Record, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Account < list[j].Account
	})
	return list
}
