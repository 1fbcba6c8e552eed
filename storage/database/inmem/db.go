package inmemdb

import (
	"sync"

	"github.com/trezcool/ulearn/core/history"
)

type (
	// DB keeps the tables in process memory. Its content is lost on exit.
	DB struct {
		history *historyTable
	}

	historyTable struct {
		mutex sync.RWMutex
		rows  []history.Record
	}
)

func Open() *DB {
	return &DB{history: &historyTable{}}
}
