package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"shelfscan/internal/apiclient"
	"shelfscan/internal/entity"
)

// Tier identifies which source served an asset.
type Tier string

const (
	TierServer Tier = "server"
	TierLocal  Tier = "local"
)

// Fetcher is the slice of the API client the resolver needs.
type Fetcher interface {
	ImageURL(jobID string, kind apiclient.FileKind, filename string) string
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Resolver loads job images with a fallback chain: the server-hosted copy
// first, the local capture second. Mirrors the on-screen behavior where the
// local preview stands in until the server's copy is reachable.
type Resolver struct {
	api    Fetcher
	logger zerolog.Logger
}

func NewResolver(api Fetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{api: api, logger: logger}
}

// Open returns the asset bytes and the tier that served them. The local copy
// is only consulted after the server attempt fails, and only for jobs that
// still own one.
func (r *Resolver) Open(ctx context.Context, job entity.Job, kind apiclient.FileKind, filename string) ([]byte, Tier, error) {
	url := r.api.ImageURL(job.JobID, kind, filename)
	data, err := r.api.FetchImage(ctx, url)
	if err == nil {
		return data, TierServer, nil
	}
	r.logger.Debug().Str("job_id", job.JobID).Str("url", url).Err(err).Msg("server asset unavailable, trying local copy")

	if job.LocalImagePath == "" {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	local, lerr := os.ReadFile(job.LocalImagePath)
	if lerr != nil {
		return nil, "", fmt.Errorf("fetch %s failed (%v) and local copy unreadable: %w", url, err, lerr)
	}
	return local, TierLocal, nil
}

// SavePreview stores a captured image under dir and returns the saved path,
// which the submitted Job then owns as its local fallback copy. The name is
// client-chosen because the copy must exist before the server assigns an id.
func SavePreview(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create preview dir: %w", err)
	}
	path := filepath.Join(dir, name+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save preview: %w", err)
	}
	return path, nil
}
