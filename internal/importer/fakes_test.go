package importer

import (
	"context"
	"database/sql/driver"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/models"
)

// memCategories is an in-memory category store.
type memCategories struct {
	mu     sync.Mutex
	next   int64
	ids    map[string]int64
	nodes  map[int64]hierarchy.Node
	levels map[int64]int
	calls  int
	fail   map[string]error
}

func newMemCategories() *memCategories {
	return &memCategories{
		ids:    map[string]int64{},
		nodes:  map[int64]hierarchy.Node{},
		levels: map[int64]int{},
		fail:   map[string]error{},
	}
}

func (m *memCategories) GetOrCreate(_ context.Context, name string, parentID *int64, t models.CategoryType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.fail[name]; err != nil {
		return 0, err
	}
	key := hierarchy.CacheKey(t, name, parentID)
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	m.next++
	id := m.next
	m.ids[key] = id
	m.nodes[id] = hierarchy.Node{ID: id, ParentID: parentID, Name: name, Type: t}
	level := 1
	if parentID != nil {
		level = m.levels[*parentID] + 1
	}
	m.levels[id] = level
	return id, nil
}

func (m *memCategories) Forest(context.Context) (*hierarchy.Forest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]hierarchy.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	return hierarchy.NewForest(nodes), nil
}

func (m *memCategories) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// remove deletes the category with the given name and type, as an admin
// would while an import is running.
func (m *memCategories) remove(name string, t models.CategoryType) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, id := range m.ids {
		if n := m.nodes[id]; n.Name == name && n.Type == t {
			delete(m.ids, key)
			delete(m.nodes, id)
			return id
		}
	}
	return 0
}

// idOf finds the category with the given name and type.
func (m *memCategories) idOf(name string, t models.CategoryType) (int64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.nodes {
		if n.Name == name && n.Type == t {
			return id, m.levels[id]
		}
	}
	return 0, 0
}

// memProducts is an in-memory product store. A batch touching badSKU or
// badName fails as a whole with a check violation, and one referencing a
// category in deleted fails with a foreign key violation, like a real
// transaction would.
type memProducts struct {
	mu       sync.Mutex
	rows     map[string]models.Product
	order    []string
	batches  int
	badSKU   string
	badName  string
	deleted  map[int64]bool
	systemic bool
	stolen   map[string]bool
	onWrite  func(batch int)
}

func newMemProducts() *memProducts {
	return &memProducts{
		rows:    map[string]models.Product{},
		stolen:  map[string]bool{},
		deleted: map[int64]bool{},
	}
}

func (m *memProducts) ExistingSKUs(_ context.Context, skus []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]bool{}
	for _, s := range skus {
		if _, ok := m.rows[s]; ok {
			found[s] = true
		}
	}
	return found, nil
}

func (m *memProducts) WriteBatch(_ context.Context, b models.ProductBatch) (models.ProductBatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.onWrite != nil {
		defer m.onWrite(m.batches)
	}
	if m.systemic {
		return models.ProductBatchResult{}, driver.ErrBadConn
	}
	for _, p := range append(append([]models.Product{}, b.Inserts...), b.Updates...) {
		if p.SKU == m.badSKU || (m.badName != "" && p.Name == m.badName) {
			return models.ProductBatchResult{}, &pgconn.PgError{Code: "23514", Message: "products_status_check"}
		}
		for _, id := range []*int64{p.VendorCategoryID, p.StoreCategoryID} {
			if id != nil && m.deleted[*id] {
				return models.ProductBatchResult{}, &pgconn.PgError{Code: "23503", Message: "products_vendor_category_id_fkey"}
			}
		}
	}

	var res models.ProductBatchResult
	for _, p := range b.Inserts {
		if m.stolen[p.SKU] {
			// Another importer got there first.
			delete(m.stolen, p.SKU)
			m.rows[p.SKU] = models.Product{SKU: p.SKU, Name: "theirs"}
			continue
		}
		if _, ok := m.rows[p.SKU]; ok {
			continue
		}
		m.rows[p.SKU] = p
		m.order = append(m.order, p.SKU)
		res.Inserted = append(res.Inserted, p.SKU)
	}
	for _, p := range b.Updates {
		if _, ok := m.rows[p.SKU]; !ok {
			continue
		}
		m.rows[p.SKU] = p
		res.Updated = append(res.Updated, p.SKU)
	}
	return res, nil
}

func (m *memProducts) ExportRows(_ context.Context, fn func(*models.Product) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sku := range m.order {
		p := m.rows[sku]
		if err := fn(&p); err != nil {
			return err
		}
	}
	return nil
}

func (m *memProducts) get(sku string) (models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[sku]
	return p, ok
}
