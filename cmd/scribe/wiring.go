package main

import (
	"context"
	"fmt"

	"github.com/kbukum/scribe/apiclient"
	"github.com/kbukum/scribe/batch"
	"github.com/kbukum/scribe/conversation"
	copenai "github.com/kbukum/scribe/conversation/openai"
	"github.com/kbukum/scribe/conversation/ollama"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/server/endpoint"
	"github.com/kbukum/scribe/store"
	"github.com/kbukum/scribe/store/file"
	"github.com/kbukum/scribe/store/redis"
	"github.com/kbukum/scribe/store/s3"
	"github.com/kbukum/scribe/store/sqlite"
	"github.com/kbukum/scribe/transcription"
	topenai "github.com/kbukum/scribe/transcription/openai"
	"github.com/kbukum/scribe/transcription/whisper"
)

// snapshotStore is an opened snapshot store with its health probe and
// release func.
type snapshotStore struct {
	batch.Store
	check endpoint.Check
	close func() error
}

func noClose() error { return nil }

// openStore opens the store selected by cfg.Driver.
func openStore(ctx context.Context, cfg StoreConfig, log *logger.Logger) (*snapshotStore, error) {
	switch cfg.Driver {
	case store.DriverMemory:
		return &snapshotStore{
			Store: provider.NewMemoryStore[batch.Snapshot](),
			check: endpoint.Check{Name: "store"},
			close: noClose,
		}, nil

	case store.DriverFile:
		s, err := file.NewStore[batch.Snapshot](cfg.File)
		if err != nil {
			return nil, err
		}
		return &snapshotStore{Store: s, check: endpoint.Check{Name: "store"}, close: noClose}, nil

	case store.DriverRedis:
		client, err := redis.New(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return &snapshotStore{
			Store: redis.NewTypedStore[batch.Snapshot](client),
			check: endpoint.Check{Name: "store", Probe: client.Ping},
			close: client.Close,
		}, nil

	case store.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return &snapshotStore{
			Store: sqlite.NewStore[batch.Snapshot](db),
			check: endpoint.Check{Name: "store", Probe: db.Ping},
			close: db.Close,
		}, nil

	case store.DriverS3:
		client, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return &snapshotStore{
			Store: s3.NewStore[batch.Snapshot](client, cfg.S3),
			check: endpoint.Check{Name: "store"},
			close: noClose,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// newTranscriber builds the transcription router over the configured
// providers in preference order.
func newTranscriber(cfg TranscriptionConfig, handle *apiclient.Handle) (*transcription.Router, error) {
	reg := transcription.NewRegistry()
	reg.RegisterFactory(topenai.ProviderName, func() (transcription.Provider, error) {
		return topenai.NewProvider(cfg.OpenAI, handle), nil
	})
	reg.RegisterFactory(whisper.ProviderName, func() (transcription.Provider, error) {
		return whisper.NewProvider(cfg.Whisper), nil
	})

	mgr := provider.NewManager(reg)
	for _, name := range cfg.Providers {
		if err := mgr.Initialize(name); err != nil {
			return nil, err
		}
	}
	return transcription.NewRouter(mgr, cfg.Retry.Config()), nil
}

// newConversation builds the conversation router. Local chat models hear
// spoken turns through transcriber.
func newConversation(cfg ConversationConfig, handle *apiclient.Handle, transcriber transcription.Gateway) (*conversation.Router, error) {
	reg := conversation.NewRegistry()
	reg.RegisterFactory(copenai.ProviderName, func() (conversation.Provider, error) {
		return copenai.NewProvider(cfg.OpenAI, handle), nil
	})
	reg.RegisterFactory(ollama.ProviderName, func() (conversation.Provider, error) {
		return ollama.NewProvider(cfg.Ollama, transcriber), nil
	})

	mgr := provider.NewManager(reg)
	for _, name := range cfg.Providers {
		if err := mgr.Initialize(name); err != nil {
			return nil, err
		}
	}
	return conversation.NewRouter(mgr), nil
}
