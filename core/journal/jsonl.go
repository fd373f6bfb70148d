package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/taxidispatch/core/model"
)

// JSONLStore appends one JSON document per line to a single file.
type JSONLStore struct {
	path string
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLStore{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONLStore) Append(ctx context.Context, ev model.HistoryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	return s.enc.Encode(ev)
}

func (s *JSONLStore) Query(ctx context.Context, q Query) ([]model.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := scanFile(ctx, s.path, q, nil)
	if err != nil {
		return nil, err
	}
	return q.apply(res), nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// scanFile appends matching events of one JSONL file to res. Malformed
// lines are skipped.
func scanFile(ctx context.Context, path string, q Query, res []model.HistoryEvent) ([]model.HistoryEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return scan(ctx, f, q, res)
}

func scan(ctx context.Context, r io.Reader, q Query, res []model.HistoryEvent) ([]model.HistoryEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ev model.HistoryEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if q.Matches(ev) {
			res = append(res, ev)
		}
	}
	return res, scanner.Err()
}
