package garden

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	logx "plantcare/pkg/logx"
)

// FileStore keeps the whole garden in one document. Paths ending in .yaml or
// .yml are read and written as YAML, anything else as JSON.
type FileStore struct {
	path string
	yaml bool
	log  logx.Logger

	mu     sync.Mutex
	plants map[string]Plant
}

type fileDoc struct {
	Plants []fileRecord `json:"plants" yaml:"plants"`
}

// fileRecord keeps care plan and journals decoded so the document stays
// readable; a value that is a JSON string is kept as a string.
type fileRecord struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Name      string    `json:"name" yaml:"name"`
	CarePlan  any       `json:"careplan,omitempty" yaml:"careplan,omitempty"`
	Journals  any       `json:"journals,omitempty" yaml:"journals,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// OpenFile loads path, creating an empty garden when it does not exist.
func OpenFile(path string, log logx.Logger) (*FileStore, error) {
	ext := strings.ToLower(filepath.Ext(path))
	s := &FileStore{
		path:   path,
		yaml:   ext == ".yaml" || ext == ".yml",
		log:    log.With(logx.String("comp", "garden.file")),
		plants: map[string]Plant{},
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return s, nil
	}

	var doc fileDoc
	if s.yaml {
		err = yaml.Unmarshal(b, &doc)
	} else {
		err = json.Unmarshal(b, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode garden %s: %w", path, err)
	}
	for _, r := range doc.Plants {
		if r.ID == "" {
			s.log.Warn("skipping plant without id", logx.String("name", r.Name))
			continue
		}
		s.plants[r.ID] = Plant{
			ID:        r.ID,
			UserID:    r.UserID,
			Name:      r.Name,
			CarePlan:  rawText(r.CarePlan),
			Journals:  rawText(r.Journals),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return s, nil
}

func (s *FileStore) FetchPlantsForUser(_ context.Context, userID string) ([]Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Plant, 0)
	for _, p := range s.plants {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sortPlants(out)
	return out, nil
}

func (s *FileStore) GetPlant(_ context.Context, id string) (Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plants[id]
	if !ok {
		return Plant{}, ErrNotFound
	}
	return p, nil
}

func (s *FileStore) InsertPlant(_ context.Context, p Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plants[p.ID]; ok {
		return fmt.Errorf("plant %s already exists", p.ID)
	}
	s.plants[p.ID] = p
	if err := s.flushLocked(); err != nil {
		delete(s.plants, p.ID)
		return err
	}
	return nil
}

func (s *FileStore) UpdatePlant(_ context.Context, p Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.plants[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.UserID = prev.UserID
	p.CreatedAt = prev.CreatedAt
	s.plants[p.ID] = p
	if err := s.flushLocked(); err != nil {
		s.plants[p.ID] = prev
		return err
	}
	return nil
}

func (s *FileStore) DeletePlant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.plants[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.plants, id)
	if err := s.flushLocked(); err != nil {
		s.plants[id] = prev
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushLocked() error {
	all := make([]Plant, 0, len(s.plants))
	for _, p := range s.plants {
		all = append(all, p)
	}
	sortPlants(all)

	doc := fileDoc{Plants: make([]fileRecord, 0, len(all))}
	for _, p := range all {
		doc.Plants = append(doc.Plants, fileRecord{
			ID:        p.ID,
			UserID:    p.UserID,
			Name:      p.Name,
			CarePlan:  rawValue(p.CarePlan),
			Journals:  rawValue(p.Journals),
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}

	var (
		b   []byte
		err error
	)
	if s.yaml {
		b, err = yaml.Marshal(doc)
	} else {
		b, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// rawText turns a decoded document value back into JSON text.
func rawText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	b, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return ""
	}
	return string(b)
}

// rawValue decodes stored JSON text for embedding; unreadable text is kept as
// a string so nothing is lost.
func rawValue(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// normalizeYAML converts map[any]any nodes to map[string]any so the value can
// be marshalled as JSON.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeYAML(val)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return v
	}
}

func sortPlants(ps []Plant) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
