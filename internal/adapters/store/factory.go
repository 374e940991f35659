package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/iliagerman/mordecai-sub000/internal/core"
)

// Backend names accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Redis   RedisConfig
}

// New creates the ConversationStore named by opts.Backend.
func New(opts Options) (core.ConversationStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendSQLite:
		path := opts.Path
		if !strings.HasSuffix(path, ".db") {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		return NewSQLiteStore(path)
	case BackendJSON:
		dir := strings.TrimSuffix(opts.Path, filepath.Ext(opts.Path))
		return NewJSONStore(dir)
	case BackendBolt:
		path := strings.TrimSuffix(opts.Path, filepath.Ext(opts.Path)) + ".bolt"
		return NewBoltStore(path)
	case BackendRedis:
		return NewRedisStore(opts.Redis)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("unknown store backend %q", opts.Backend))
	}
}
