package cmd

import (
	"context"
	"fmt"

	"github.com/zjrosen/layerforge/internal/config"
	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/store"
	"github.com/zjrosen/layerforge/internal/store/fs"
	"github.com/zjrosen/layerforge/internal/store/memory"
	"github.com/zjrosen/layerforge/internal/store/s3"
)

// openStore returns the build output store. dryRun forces the memory driver.
func openStore(ctx context.Context, c config.Config, dryRun bool) (store.Store, error) {
	driver, err := store.ParseDriver(c.Store.Driver)
	if err != nil {
		return nil, err
	}
	if dryRun {
		driver = store.DriverMemory
	}
	log.Debug(log.CatStore, "Opening store", "driver", driver)

	switch driver {
	case store.DriverMemory:
		return memory.New(), nil
	case store.DriverS3:
		s, err := s3.OpenFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("opening s3 store: %w", err)
		}
		return s, nil
	default:
		s, err := fs.New(c.BuildDir)
		if err != nil {
			return nil, fmt.Errorf("opening build directory: %w", err)
		}
		return s, nil
	}
}
