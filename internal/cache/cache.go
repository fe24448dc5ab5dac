// Package cache holds the in-memory mirror of buyers and challans that serves
// every read. The index is rebuilt in bulk by Load and patched by the services
// after each committed store write.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
	"github.com/crsmanager/crs-backend/pkg/metrics"
)

const (
	opInsertBuyer    = "insert_buyer"
	opRekeyBuyer     = "rekey_buyer"
	opRemoveBuyer    = "remove_buyer"
	opInsertChallan  = "insert_challan"
	opReplaceChallan = "replace_challan"
)

// Cache is safe for concurrent use. Readers take a shared lock and never
// observe a half-applied patch; writers apply each patch as one exclusive step.
type Cache struct {
	mu  sync.RWMutex
	idx *index

	loaded     bool
	loadedAt   time.Time
	lastReload time.Duration

	// writeMu orders whole store-then-cache sequences. Readers never take it.
	writeMu sync.Mutex

	metrics *metrics.CacheMetrics
	logg    *logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics reports sizes, reloads and patches to m.
func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger used for reload events.
func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.logg = l }
}

// New returns an empty, not yet loaded cache.
func New(opts ...Option) *Cache {
	c := &Cache{idx: newIndex(0, 0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats summarizes the cache contents.
type Stats struct {
	Loaded         bool      `json:"loaded"`
	Buyers         int       `json:"buyers"`
	Challans       int       `json:"challans"`
	LoadedAt       time.Time `json:"loaded_at,omitempty"`
	LastReloadTook string    `json:"last_reload_took,omitempty"`
}

type index struct {
	buyers     map[string]Buyer
	buyerNames map[int64]string
	challans   []Challan
	challanPos map[int64]int
}

func newIndex(buyers, challans int) *index {
	return &index{
		buyers:     make(map[string]Buyer, buyers),
		buyerNames: make(map[int64]string, buyers),
		challans:   make([]Challan, 0, challans),
		challanPos: make(map[int64]int, challans),
	}
}

// WithWriteLock runs fn while holding the writer lock. Services wrap each
// store write and its cache patch in it so patches land in commit order.
func (c *Cache) WithWriteLock(fn func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn()
}

// Loaded reports whether at least one full load has completed.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Stats returns entry counts and reload bookkeeping.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := Stats{
		Loaded:   c.loaded,
		Buyers:   len(c.idx.buyers),
		Challans: len(c.idx.challans),
	}
	if c.loaded {
		stats.LoadedAt = c.loadedAt
		stats.LastReloadTook = c.lastReload.String()
	}
	return stats
}

// FindBuyerByID returns the buyer with the given id.
func (c *Cache) FindBuyerByID(id int64) (Buyer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.idx.buyerNames[id]
	if !ok {
		return Buyer{}, buyerNotFound(fmt.Sprintf("buyer %d not found", id))
	}
	return c.idx.buyers[name].clone(), nil
}

// FindBuyerByName returns the buyer with exactly the given name.
func (c *Cache) FindBuyerByName(name string) (Buyer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.idx.buyers[name]
	if !ok {
		return Buyer{}, buyerNotFound(fmt.Sprintf("buyer %q not found", name))
	}
	return b.clone(), nil
}

// SearchBuyers returns buyers whose name contains query, ignoring case, sorted
// by name. An empty query matches every buyer.
func (c *Cache) SearchBuyers(query string) []Buyer {
	folder := cases.Fold()
	needle := folder.String(strings.TrimSpace(query))

	c.mu.RLock()
	out := make([]Buyer, 0, len(c.idx.buyers))
	for name, b := range c.idx.buyers {
		if needle == "" || strings.Contains(folder.String(name), needle) {
			out = append(out, b.clone())
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListChallans returns every challan in cache order. The slice is a copy; the
// entries share storage with the cache and must not be modified.
func (c *Cache) ListChallans() []Challan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Challan, len(c.idx.challans))
	copy(out, c.idx.challans)
	return out
}

// FindChallanByID returns the challan with the given id.
func (c *Cache) FindChallanByID(id int64) (Challan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.idx.challanPos[id]
	if !ok {
		return Challan{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("challan %d not found", id))
	}
	return c.idx.challans[pos].clone(), nil
}

// InsertBuyer adds a buyer. The name must not already be present.
func (c *Cache) InsertBuyer(b Buyer) error {
	b = b.clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.idx.buyers[b.Name]; exists {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("buyer %q already cached", b.Name))
	}
	if _, exists := c.idx.buyerNames[b.ID]; exists {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("buyer %d already cached", b.ID))
	}
	c.idx.buyers[b.Name] = b
	c.idx.buyerNames[b.ID] = b.Name
	c.mutated(opInsertBuyer)
	return nil
}

// RekeyBuyer replaces the buyer cached under oldName with b, stored under
// newName, and refreshes the buyer snapshot of every challan referencing it.
func (c *Cache) RekeyBuyer(oldName, newName string, b Buyer) error {
	b = b.clone()
	b.Name = newName

	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.idx.buyers[oldName]
	if !ok {
		return buyerNotFound(fmt.Sprintf("buyer %q not found", oldName))
	}
	if current.ID != b.ID {
		return pkgerrors.New(pkgerrors.CodeIntegrity, fmt.Sprintf("buyer %q has id %d, not %d", oldName, current.ID, b.ID))
	}
	if newName != oldName {
		if _, taken := c.idx.buyers[newName]; taken {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("buyer %q already cached", newName))
		}
		delete(c.idx.buyers, oldName)
	}
	c.idx.buyers[newName] = b
	c.idx.buyerNames[b.ID] = newName

	for i := range c.idx.challans {
		if c.idx.challans[i].Buyer.ID != b.ID {
			continue
		}
		ch := c.idx.challans[i]
		ch.Buyer = b
		c.idx.challans[i] = ch
	}
	c.mutated(opRekeyBuyer)
	return nil
}

// RemoveBuyer drops the buyer cached under name.
func (c *Cache) RemoveBuyer(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.idx.buyers[name]
	if !ok {
		return buyerNotFound(fmt.Sprintf("buyer %q not found", name))
	}
	delete(c.idx.buyers, name)
	delete(c.idx.buyerNames, b.ID)
	c.mutated(opRemoveBuyer)
	return nil
}

// InsertChallan adds a challan at the given position. The id must be new and
// the challan must carry at least one product.
func (c *Cache) InsertChallan(ch Challan, pos Position) error {
	if len(ch.Products) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "challan must contain at least one product")
	}
	ch = ch.clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.idx.challanPos[ch.ID]; exists {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("challan %d already cached", ch.ID))
	}

	switch pos {
	case Back:
		c.idx.challanPos[ch.ID] = len(c.idx.challans)
		c.idx.challans = append(c.idx.challans, ch)
	default:
		// Readers hold copies of the old slice, so build a new backing array.
		next := make([]Challan, 0, len(c.idx.challans)+1)
		next = append(next, ch)
		next = append(next, c.idx.challans...)
		c.idx.challans = next
		for i, entry := range next {
			c.idx.challanPos[entry.ID] = i
		}
	}
	c.mutated(opInsertChallan)
	return nil
}

// ReplaceChallan swaps the entry for id with ch, keeping its position.
func (c *Cache) ReplaceChallan(id int64, ch Challan) error {
	if ch.ID != id {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("challan id %d does not match %d", ch.ID, id))
	}
	if len(ch.Products) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "challan must contain at least one product")
	}
	ch = ch.clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.idx.challanPos[id]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("challan %d not found", id))
	}
	c.idx.challans[pos] = ch
	c.mutated(opReplaceChallan)
	return nil
}

// swap installs a freshly built index.
func (c *Cache) swap(idx *index, took time.Duration) {
	c.mu.Lock()
	c.idx = idx
	c.loaded = true
	c.loadedAt = time.Now().UTC()
	c.lastReload = took
	buyers, challans := len(idx.buyers), len(idx.challans)
	c.mu.Unlock()

	c.metrics.SetSizes(buyers, challans)
}

// mutated must be called with mu held.
func (c *Cache) mutated(op string) {
	c.metrics.IncMutation(op)
	c.metrics.SetSizes(len(c.idx.buyers), len(c.idx.challans))
}

func buyerNotFound(msg string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, msg)
}
