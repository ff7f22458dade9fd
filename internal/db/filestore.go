package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const orderFileExt = ".json"

// FileOrderStore persists one JSON document per order under a data directory.
// Writes go through a temp file and rename so readers never see a partial record.
type FileOrderStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
	now    func() time.Time
}

func NewFileOrderStore(dir string, logger *slog.Logger) (*FileOrderStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("order data directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, persistenceError("create data dir", dir, err)
	}
	return &FileOrderStore{
		dir:    dir,
		logger: logger.With("component", "file_order_store"),
		now:    time.Now,
	}, nil
}

func (s *FileOrderStore) Dir() string {
	return s.dir
}

func (s *FileOrderStore) Create(_ context.Context, order *Order) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.scan(func(o *Order) bool { return o.StripeSessionID == order.StripeSessionID })
	if err != nil {
		return nil, persistenceError("create", order.StripeSessionID, err)
	}
	if len(existing) > 0 {
		return nil, ErrDuplicateSession
	}

	record := prepareForCreate(order, s.now())
	if err := s.write(record); err != nil {
		return nil, persistenceError("create", record.PrivateID.String(), err)
	}
	return record, nil
}

func (s *FileOrderStore) FindByID(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, err := s.read(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError("find by id", id.String(), err)
	}
	return order, nil
}

func (s *FileOrderStore) FindByStripeSessionID(_ context.Context, sessionID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := s.scan(func(o *Order) bool { return o.StripeSessionID == sessionID })
	if err != nil {
		return nil, persistenceError("find by session", sessionID, err)
	}
	if len(matches) == 0 {
		return nil, ErrOrderNotFound
	}
	return matches[0], nil
}

func (s *FileOrderStore) Update(_ context.Context, id uuid.UUID, patch OrderPatch) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.read(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError("update", id.String(), err)
	}

	patch.Apply(order)
	order.UpdatedAt = s.now().UTC()
	if err := s.write(order); err != nil {
		return nil, persistenceError("update", id.String(), err)
	}
	return order, nil
}

func (s *FileOrderStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, persistenceError("delete", id.String(), err)
}

func (s *FileOrderStore) FindAll(_ context.Context, limit int) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders, err := s.scan(nil)
	if err != nil {
		return nil, persistenceError("find all", "", err)
	}
	sortNewestFirst(orders)
	return applyLimit(orders, limit), nil
}

func (s *FileOrderStore) FindByUserID(_ context.Context, userID string, excludeCart bool) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders, err := s.scan(func(o *Order) bool {
		if o.UserID != userID {
			return false
		}
		return !excludeCart || o.Status != StatusCart
	})
	if err != nil {
		return nil, persistenceError("find by user", userID, err)
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (s *FileOrderStore) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return persistenceError("ping", s.dir, err)
	}
	if !info.IsDir() {
		return persistenceError("ping", s.dir, fmt.Errorf("not a directory"))
	}
	return nil
}

func (s *FileOrderStore) Close() error {
	return nil
}

func (s *FileOrderStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+orderFileExt)
}

func (s *FileOrderStore) read(id uuid.UUID) (*Order, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &order, nil
}

func (s *FileOrderStore) write(order *Order) error {
	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+order.PrivateID.String()+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path(order.PrivateID)); err != nil {
		cleanup()
		return err
	}
	return nil
}

// scan decodes every record that matches keep. Unreadable records are skipped with a warning.
func (s *FileOrderStore) scan(keep func(*Order) bool) ([]*Order, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != orderFileExt {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, orderFileExt))
		if err != nil {
			continue
		}
		order, err := s.read(id)
		if err != nil {
			s.logger.Warn("skipping unreadable order record", "file", name, "error", err)
			continue
		}
		if keep == nil || keep(order) {
			orders = append(orders, order)
		}
	}
	return orders, nil
}
