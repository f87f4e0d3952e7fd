package inmemdb

import (
	"sync"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

type (
	// DB is a process-local store, used by tests and the "memory" storage driver.
	DB struct {
		walkthrough *walkthroughTable
	}

	walkthroughTable struct {
		sync.RWMutex
		docs   map[string]*walkthrough.Document
		events map[string][]walkthrough.ReviewEvent // by document ID
	}
)

func Open() (*DB, error) {
	db := &DB{
		walkthrough: &walkthroughTable{
			docs:   make(map[string]*walkthrough.Document),
			events: make(map[string][]walkthrough.ReviewEvent),
		},
	}
	return db, nil
}
