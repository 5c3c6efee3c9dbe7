package cmd

import (
	"net/http"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/index"
	"go-case-tracker/internal/api"
	"go-case-tracker/internal/caselist"
	"go-case-tracker/internal/config"
	"go-case-tracker/internal/database"
	"go-case-tracker/internal/mutation"
	"go-case-tracker/internal/snapshot"
)

// app is the set of collaborators a command works with. Optional stores are
// nil when disabled or when they could not be opened.
type app struct {
	client   *api.Client
	journal  *database.DB
	snapshot *snapshot.Store
	bleve    bleve.Index
	indexer  *index.Indexer
	service  *mutation.Service
}

func newAPIClient() *api.Client {
	httpClient := &http.Client{Transport: globalHttpTransport}
	if globalHttpTransport == http.DefaultTransport {
		httpClient.Transport = nil
	}
	timeout := config.DefaultAPIClientTimeoutSec
	if globalConfig.APIClientTimeoutSec > 0 {
		timeout = globalConfig.APIClientTimeoutSec
	}
	httpClient.Timeout = time.Duration(timeout) * time.Second
	return api.NewClient(httpClient, globalConfig)
}

// openApp opens the client and every enabled local store.
func openApp() *app {
	a := &app{client: newAPIClient()}
	cfg := globalConfig

	if cfg.Journal.Enabled || cfg.Snapshot.Enabled || cfg.Index.Enabled {
		if err := config.EnsureDataPath(cfg); err != nil {
			log.WithError(err).Warn("Local stores disabled")
			a.service = mutation.NewService(a.client, nil)
			return a
		}
	}

	if cfg.Journal.Enabled {
		db, err := database.Open(cfg.DatabasePath)
		if err != nil {
			log.WithError(err).Warnf("Journal unavailable at %s", cfg.DatabasePath)
		} else {
			a.journal = db
		}
	}
	if cfg.Snapshot.Enabled {
		store, err := snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			log.WithError(err).Warnf("Snapshot store unavailable at %s", cfg.SnapshotPath)
		} else {
			a.snapshot = store
		}
	}
	if cfg.Index.Enabled {
		idx, err := index.OpenOrCreateIndex(cfg.BleveIndexPath)
		if err != nil {
			log.WithError(err).Errorf("Failed to open or create bleve index at %s", cfg.BleveIndexPath)
		} else {
			a.bleve = idx
			a.indexer = index.NewIndexer(idx)
		}
	}

	if a.journal != nil {
		a.service = mutation.NewService(a.client, a.journal)
	} else {
		a.service = mutation.NewService(a.client, nil)
	}
	return a
}

// observers are the local stores that follow every applied refresh.
func (a *app) observers() []caselist.Observer {
	var out []caselist.Observer
	if a.snapshot != nil {
		out = append(out, a.snapshot)
	}
	if a.indexer != nil {
		out = append(out, a.indexer)
	}
	return out
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.WithError(err).Warn("Closing journal")
		}
	}
	if a.snapshot != nil {
		if err := a.snapshot.Close(); err != nil {
			log.WithError(err).Warn("Closing snapshot store")
		}
	}
	if a.bleve != nil {
		if err := a.bleve.Close(); err != nil {
			log.WithError(err).Warn("Closing search index")
		}
	}
}
