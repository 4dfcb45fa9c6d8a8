package repository

import (
	"sync"

	"gorm.io/gorm"
)

// NewRepositories creates all repository instances from one DB handle.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		License: NewLicenseRepository(db),
	}
}

// Global factory instance
var (
	globalRepos *Repositories
	factoryOnce sync.Once
)

// InitializeRepositories initializes the global repository bundle.
func InitializeRepositories(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalRepos = NewRepositories(db)
	})
}

// GetRepositories returns the global repositories instance.
func GetRepositories() *Repositories {
	if globalRepos == nil {
		panic("Repositories not initialized. Call InitializeRepositories first.")
	}
	return globalRepos
}
