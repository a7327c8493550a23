package sensor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

const debugPreviewLimit = 512

// DebugRecorder captures raw provider payloads while debug mode is on.
// Every payload is logged as an abbreviated preview and retained in
// memory for the debug route, and when a dump directory is configured
// the full payload is written there too, one file per endpoint holding
// the latest response.
type DebugRecorder struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time

	mu     sync.RWMutex
	latest map[string][]byte
}

func NewDebugRecorder(dir string, logger *logging.Logger) *DebugRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &DebugRecorder{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		latest: make(map[string][]byte),
	}
}

// Payloads returns a copy of the latest payload captured per endpoint.
func (r *DebugRecorder) Payloads() map[string][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]byte, len(r.latest))
	for endpoint, payload := range r.latest {
		out[endpoint] = append([]byte(nil), payload...)
	}
	return out
}

func (r *DebugRecorder) Record(ctx context.Context, endpoint string, payload []byte) {
	r.mu.Lock()
	r.latest[endpoint] = append([]byte(nil), payload...)
	r.mu.Unlock()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	preview := payload
	truncated := false
	if len(preview) > debugPreviewLimit {
		preview = preview[:debugPreviewLimit]
		truncated = true
	}
	_, _ = buf.Write(preview)
	if truncated {
		_, _ = buf.WriteString("...")
	}

	r.logger.DebugContext(ctx, "provider payload",
		"endpoint", endpoint,
		"bytes", len(payload),
		"preview", buf.String(),
	)

	if r.dir == "" {
		return
	}
	path := filepath.Join(r.dir, endpointFileName(endpoint))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		r.logger.WarnContext(ctx, "write debug dump failed", "path", path, "error", err)
	}
}

// endpointFileName turns an API path into a stable file name, for
// example /league/449.l.1/settings -> league_449.l.1_settings.json.
func endpointFileName(endpoint string) string {
	name := strings.Trim(endpoint, "/")
	name = strings.NewReplacer("/", "_", ";", "_", "=", "-", ",", "-").Replace(name)
	if name == "" {
		name = "root"
	}
	return name + ".json"
}
