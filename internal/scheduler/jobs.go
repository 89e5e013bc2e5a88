package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/calculations"
)

// CachePurgeJob deletes expired calculation-cache rows.
type CachePurgeJob struct {
	cache *calculations.Cache
	log   zerolog.Logger
}

// NewCachePurgeJob creates the cache purge job.
func NewCachePurgeJob(cache *calculations.Cache, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache: cache,
		log:   log.With().Str("component", "cache_purge_job").Logger(),
	}
}

// Name returns the job name.
func (j *CachePurgeJob) Name() string {
	return "cache_purge"
}

// Run purges expired cache entries.
func (j *CachePurgeJob) Run() error {
	purged, err := j.cache.PurgeExpired()
	if err != nil {
		return fmt.Errorf("purging expired cache entries: %w", err)
	}
	if purged > 0 {
		j.log.Info().Int64("purged", purged).Msg("Purged expired cache entries")
	}
	return nil
}
