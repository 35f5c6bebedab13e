package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	globalFactory *Factory
	factoryOnce   sync.Once
)

// InitializeFactory installs the process-wide factory. The first call wins;
// later calls are no-ops, which keeps test packages that share a binary on
// one store.
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalRepositories returns the shared repository bundle. Panics when the
// factory was never initialized, which is a wiring bug in main.
func GetGlobalRepositories() *Repositories {
	if globalFactory == nil {
		panic("repository: factory not initialized, call InitializeFactory first")
	}
	return globalFactory.GetRepositories()
}
