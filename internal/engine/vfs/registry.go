package vfs

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"golang.org/x/time/rate"

	"pklsense/internal/engine/cache"
	"pklsense/internal/shared/observability"
)

type Config struct {
	// ModulePath is the ordered list of base directories searched by
	// modulepath: URIs. First existing match wins.
	ModulePath []string
	// CacheDir holds fetched https module content, one file per URI keyed by
	// URL-encoding the full URI. Empty disables the disk cache.
	CacheDir     string
	FetchTimeout time.Duration
	// FetchRate caps outbound module fetches per second. Zero means a
	// conservative default.
	FetchRate float64
}

const defaultFetchTimeout = 20 * time.Second

// Registry owns the process-wide URI -> VirtualFile identity map, the
// embedded stdlib, and the https fetch path with its negative cache.
type Registry struct {
	fs      afs.Service
	cfg     Config
	limiter *rate.Limiter

	mu    sync.Mutex
	files map[string]*VirtualFile

	negMu    sync.Mutex
	negative map[string]struct{}
}

func NewRegistry(cfg Config) *Registry {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	limit := rate.Limit(cfg.FetchRate)
	if limit <= 0 {
		limit = rate.Limit(8)
	}
	return &Registry{
		fs:       afs.New(),
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 4),
		files:    make(map[string]*VirtualFile),
		negative: make(map[string]struct{}),
	}
}

// Resolve maps a URI to its VirtualFile. Repeated calls with the same
// effective URI return the same instance. Unknown schemes and stdlib misses
// return nil; existence of local/remote content is not checked here.
func (r *Registry) Resolve(uri string) *VirtualFile {
	eff := NormalizeURI(uri)

	var origin Origin
	switch {
	case strings.HasPrefix(eff, "pkl:"):
		if _, ok := stdlibSource(strings.TrimPrefix(eff, "pkl:")); !ok {
			return nil
		}
		origin = OriginStdlib
	case strings.HasPrefix(eff, "file://"):
		origin = OriginLocal
	case strings.HasPrefix(eff, "https://"):
		origin = OriginHTTPS
	case strings.HasPrefix(eff, "modulepath:"):
		resolved, ok := r.resolveModulePath(strings.TrimPrefix(eff, "modulepath:"))
		if !ok {
			return nil
		}
		return r.Resolve(resolved)
	case strings.HasPrefix(eff, ephemeralPrefix):
		// Ephemeral files exist only if already registered.
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.files[eff]
	default:
		return nil
	}

	return r.intern(eff, origin)
}

func (r *Registry) intern(uri string, origin Origin) *VirtualFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[uri]; ok {
		return f
	}
	f := &VirtualFile{uri: uri, origin: origin, reg: r, tracker: cache.NewTracker()}
	r.files[uri] = f
	return f
}

const ephemeralPrefix = "pklsense://ephemeral/"

// NewEphemeral registers an analysis-only file that never touches disk.
func (r *Registry) NewEphemeral(content []byte) *VirtualFile {
	uri := ephemeralPrefix + uuid.NewString()
	f := &VirtualFile{uri: uri, origin: OriginEphemeral, reg: r, tracker: cache.NewTracker()}
	f.content = content
	f.loaded = true
	r.mu.Lock()
	r.files[uri] = f
	r.mu.Unlock()
	return f
}

// resolveModulePath searches the configured base directories in order.
func (r *Registry) resolveModulePath(rel string) (string, bool) {
	rel = strings.TrimPrefix(rel, "/")
	for _, base := range r.cfg.ModulePath {
		candidate := filepath.Join(base, filepath.FromSlash(rel))
		if _, err := os.Stat(candidate); err == nil {
			return PathToURI(candidate), true
		}
	}
	return "", false
}

// MarkNegative remembers a URI as unresolvable for the process lifetime.
func (r *Registry) MarkNegative(uri string) {
	r.negMu.Lock()
	defer r.negMu.Unlock()
	if _, ok := r.negative[uri]; ok {
		return
	}
	r.negative[uri] = struct{}{}
	observability.NegativeCacheSize.Set(float64(len(r.negative)))
}

func (r *Registry) IsNegative(uri string) bool {
	r.negMu.Lock()
	defer r.negMu.Unlock()
	_, ok := r.negative[uri]
	return ok
}

// fetch loads bytes for a file. Called once per VirtualFile until it is
// invalidated; all failures are converted to a miss here.
func (r *Registry) fetch(uri string, origin Origin) ([]byte, bool) {
	switch origin {
	case OriginStdlib:
		return stdlibSource(strings.TrimPrefix(uri, "pkl:"))
	case OriginLocal:
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FetchTimeout)
		defer cancel()
		data, err := r.fs.DownloadWithURL(ctx, uri)
		if err != nil {
			return nil, false
		}
		return data, true
	case OriginHTTPS:
		return r.fetchRemote(uri)
	case OriginEphemeral:
		return nil, false
	}
	return nil, false
}

func (r *Registry) fetchRemote(uri string) ([]byte, bool) {
	if r.IsNegative(uri) {
		return nil, false
	}

	var cachePath string
	if r.cfg.CacheDir != "" {
		cachePath = filepath.Join(r.cfg.CacheDir, url.QueryEscape(uri))
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FetchTimeout)
	defer cancel()
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, false
	}

	start := time.Now()
	data, err := r.fs.DownloadWithURL(ctx, uri)
	observability.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("module fetch failed", "uri", uri, "error", err)
		r.MarkNegative(uri)
		return nil, false
	}

	if cachePath != "" {
		if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err == nil {
			if err := os.WriteFile(cachePath, data, 0o644); err != nil {
				slog.Warn("module cache write failed", "path", cachePath, "error", err)
			}
		}
	}
	return data, true
}

// LocalFiles lists every .pkl file under a file: root, for glob expansion.
// Paths come back as URIs in walk order.
func (r *Registry) LocalFiles(rootURI string) []string {
	root, ok := URIToPath(rootURI)
	if !ok {
		return nil
	}
	var uris []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(path, ".pkl") {
			uris = append(uris, PathToURI(path))
		}
		return nil
	})
	return uris
}
