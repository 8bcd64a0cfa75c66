package memstore

import "sync"

var registry = struct {
	sync.Mutex
	catalogs map[string]*Catalog
	orders   map[string]*Orders
}{
	catalogs: make(map[string]*Catalog),
	orders:   make(map[string]*Orders),
}

// SharedCatalog returns the process-wide catalog replica called name,
// creating it empty on first use.
func SharedCatalog(name string) *Catalog {
	registry.Lock()
	defer registry.Unlock()
	c, ok := registry.catalogs[name]
	if !ok {
		c = NewCatalog(name)
		registry.catalogs[name] = c
	}
	return c
}

// SharedOrders returns the process-wide order replica called name.
func SharedOrders(name string) *Orders {
	registry.Lock()
	defer registry.Unlock()
	o, ok := registry.orders[name]
	if !ok {
		o = NewOrders(name)
		registry.orders[name] = o
	}
	return o
}
