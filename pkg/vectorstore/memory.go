package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docbot/pkg/domain"
)

// MemoryBackend keeps collections in-process with brute-force cosine search.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]domain.Collection
	chunks      map[string]*memoryCollection
}

type memoryCollection struct {
	seq     int
	records map[string]memoryRecord
}

type memoryRecord struct {
	Record
	seq int
}

// NewMemoryBackend builds an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string]domain.Collection),
		chunks:      make(map[string]*memoryCollection),
	}
}

func (m *MemoryBackend) ListCollections(_ context.Context) ([]domain.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Collection, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryBackend) CreateCollection(_ context.Context, c domain.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[c.Name] = c
	if _, ok := m.chunks[c.Name]; !ok {
		m.chunks[c.Name] = &memoryCollection{records: make(map[string]memoryRecord)}
	}
	return nil
}

func (m *MemoryBackend) SetCollectionStatus(_ context.Context, name string, status domain.CollectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ErrCollectionNotFound
	}
	c.Status = status
	m.collections[name] = c
	return nil
}

func (m *MemoryBackend) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	delete(m.chunks, name)
	return nil
}

func (m *MemoryBackend) Upsert(_ context.Context, collection string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.chunks[collection]
	if !ok {
		col = &memoryCollection{records: make(map[string]memoryRecord)}
		m.chunks[collection] = col
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record id required")
		}
		seq := col.seq
		if prev, exists := col.records[r.ID]; exists {
			seq = prev.seq
		} else {
			col.seq++
		}
		col.records[r.ID] = memoryRecord{Record: copyRecord(r), seq: seq}
	}
	return nil
}

func (m *MemoryBackend) DeleteWhere(_ context.Context, collection, key, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.chunks[collection]
	if !ok {
		return 0, nil
	}
	removed := 0
	for id, r := range col.records {
		if r.Metadata[key] == value {
			delete(col.records, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryBackend) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.chunks[collection]
	if !ok {
		return 0, nil
	}
	return len(col.records), nil
}

func (m *MemoryBackend) Query(_ context.Context, collection string, vector []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.chunks[collection]
	if !ok || k <= 0 {
		return nil, nil
	}
	type scored struct {
		rec  memoryRecord
		dist float64
	}
	all := make([]scored, 0, len(col.records))
	for _, r := range col.records {
		if len(r.Embedding) != len(vector) {
			return nil, fmt.Errorf("vector dimension %d does not match collection dimension %d", len(vector), len(r.Embedding))
		}
		all = append(all, scored{rec: r, dist: cosineDistance(vector, r.Embedding)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].rec.seq < all[j].rec.seq
	})
	if len(all) > k {
		all = all[:k]
	}
	out := make([]Match, 0, len(all))
	for _, s := range all {
		out = append(out, Match{
			ID:       s.rec.ID,
			Content:  s.rec.Content,
			Metadata: copyMetadata(s.rec.Metadata),
			Distance: s.dist,
		})
	}
	return out, nil
}

func (m *MemoryBackend) Scan(_ context.Context, collection string, fn func(Record) error) error {
	m.mu.RLock()
	col, ok := m.chunks[collection]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	recs := make([]memoryRecord, 0, len(col.records))
	for _, r := range col.records {
		recs = append(recs, r)
	}
	m.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	for _, r := range recs {
		if err := fn(Record{ID: r.ID, Content: r.Content, Metadata: copyMetadata(r.Metadata)}); err != nil {
			return err
		}
	}
	return nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func copyRecord(r Record) Record {
	emb := make([]float32, len(r.Embedding))
	copy(emb, r.Embedding)
	return Record{ID: r.ID, Content: r.Content, Metadata: copyMetadata(r.Metadata), Embedding: emb}
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
