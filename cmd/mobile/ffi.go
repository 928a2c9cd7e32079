// Package main provides the C ABI bridge for mobile platforms.
// Build as shared library: libcpccore.so (Android) / cpccore.framework (iOS)
//
// Every operation takes one JSON request document and returns a JSON
// response document. Returned strings are owned by the caller and must be
// released with FreeString.
package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/humancuration/cpc-core/internal/config"
	"github.com/humancuration/cpc-core/internal/db"
	"github.com/humancuration/cpc-core/internal/facade"
	"github.com/humancuration/cpc-core/internal/logging"
	"github.com/humancuration/cpc-core/internal/media"
	"github.com/humancuration/cpc-core/internal/social"
	"github.com/humancuration/cpc-core/internal/timeline"
)

var (
	once     sync.Once
	core     *facade.Facade
	repo     *db.Repository
	database *db.DB
	lastErr  string
	lastMu   sync.RWMutex
)

// initOptions is the config document accepted by CoreInit. Absent fields
// keep their CPC_* environment defaults.
type initOptions struct {
	DataDir         string `json:"data_dir"`
	LogLevel        string `json:"log_level"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	CacheHead       int    `json:"cache_head"`
}

//export CoreInit
// CoreInit initializes the core. configJSON may be NULL or empty to use
// environment defaults. Idempotent; only the first call takes effect.
// Returns 0 on success, 1 on failure (see GetLastError).
func CoreInit(configJSON *C.char) int32 {
	raw := ""
	if configJSON != nil {
		raw = C.GoString(configJSON)
	}
	once.Do(func() {
		initialize(raw)
	})
	if core == nil {
		return 1
	}
	return 0
}

func initialize(raw string) {
	cfg := config.LoadConfig()
	if raw != "" {
		var opts initOptions
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			setLastError(fmt.Sprintf("Invalid config document: %v", err))
			return
		}
		if opts.DataDir != "" {
			cfg.DataDir = opts.DataDir
		}
		if opts.LogLevel != "" {
			cfg.LogLevel = opts.LogLevel
		}
		if opts.CacheTTLSeconds > 0 {
			cfg.TimelineCacheTTLSeconds = opts.CacheTTLSeconds
		}
		if opts.CacheHead > 0 {
			cfg.TimelineCacheHead = opts.CacheHead
		}
	}

	logging.Init(os.Stderr, logging.LogLevel(cfg.LogLevel))

	var err error
	database, err = db.Open(cfg.DataDir)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to open database: %v", err))
		return
	}

	migrator := db.NewEmbeddedMigrator(database.Write)
	if err := migrator.Initialize(); err != nil {
		setLastError(fmt.Sprintf("Failed to initialize migrator: %v", err))
		database.Close()
		database = nil
		return
	}
	if err := migrator.Up(); err != nil {
		setLastError(fmt.Sprintf("Failed to apply migrations: %v", err))
		database.Close()
		database = nil
		return
	}

	repo = db.NewRepository(database)
	cache := timeline.NewMemoryCache(time.Duration(cfg.TimelineCacheTTLSeconds) * time.Second)
	assembler := timeline.NewAssembler(repo, cache, cfg.TimelineCacheHead)
	core = facade.New(social.NewService(repo, assembler, nil))

	logging.Info("Core initialized", map[string]interface{}{
		"data_dir": cfg.DataDir,
	})
}

//export CoreShutdown
// CoreShutdown releases the store. Operations after shutdown return error
// documents.
func CoreShutdown() {
	core = nil
	if repo != nil {
		repo.Close()
		repo = nil
	}
	if database != nil {
		database.Close()
		database = nil
	}
}

//export GetLastError
// GetLastError returns the last bridge-level error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()

	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

// callCore routes one request document through a facade operation. The
// facade guarantees a well-formed response document for any input.
func callCore(request *C.char, op func(ctx context.Context, req []byte) []byte) *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return C.CString(`{"error":{"code":"INTERNAL_STORE_ERROR","message":"core not initialized"}}`)
	}
	var req []byte
	if request != nil {
		req = []byte(C.GoString(request))
	}
	return C.CString(string(op(context.Background(), req)))
}

// =====================================================
// Identity Operations
// =====================================================

//export CreateUser
// CreateUser registers a user: {"id"?} -> {"user"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func CreateUser(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.CreateUser(ctx, req)
	})
}

//export GetUser
// GetUser looks up a user: {"user_id"} -> {"user"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func GetUser(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.GetUser(ctx, req)
	})
}

// =====================================================
// Post Operations
// =====================================================

//export CreatePost
// CreatePost stores a post: {"author_id","body"} -> {"post"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func CreatePost(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.CreatePost(ctx, req)
	})
}

//export GetPost
// GetPost looks up a post: {"post_id"} -> {"post"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func GetPost(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.GetPost(ctx, req)
	})
}

//export GetTimeline
// GetTimeline assembles the home feed:
// {"user_id","limit","offset","include_self"?} -> {"entries"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func GetTimeline(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.GetTimeline(ctx, req)
	})
}

// =====================================================
// Relationship Operations
// =====================================================

//export CreateRelationship
// CreateRelationship adds a follow edge:
// {"follower_id","followed_id"} -> {"relationship"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func CreateRelationship(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.CreateRelationship(ctx, req)
	})
}

//export DeleteRelationship
// DeleteRelationship removes a follow edge:
// {"follower_id","followed_id"} -> {"status"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func DeleteRelationship(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.DeleteRelationship(ctx, req)
	})
}

//export GetFollowers
// GetFollowers lists followers: {"user_id"} -> {"user_ids"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func GetFollowers(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.GetFollowers(ctx, req)
	})
}

//export GetFollowing
// GetFollowing lists followed accounts: {"user_id"} -> {"user_ids"} | {"error"}.
// Returns JSON string that must be freed by the caller.
func GetFollowing(request *C.char) *C.char {
	return callCore(request, func(ctx context.Context, req []byte) []byte {
		return core.GetFollowing(ctx, req)
	})
}

// =====================================================
// Thumbnail Operations
// =====================================================

//export GenerateModelThumbnail
// GenerateModelThumbnail renders a thumbnail of the file at modelPath into
// outputPath, fitting a size x size box. Stateless; works without CoreInit.
// Returns NULL on success or an error message that must be freed by the
// caller.
func GenerateModelThumbnail(modelPath, outputPath *C.char, size int32) *C.char {
	err := media.Generate(C.GoString(modelPath), C.GoString(outputPath), int(size))
	if err != nil {
		setLastError(err.Error())
		return C.CString(err.Error())
	}
	return nil
}

// =====================================================
// Memory Management Helpers
// =====================================================

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {
	// Main entry point for shared library
	// Not used when loaded as library
}
