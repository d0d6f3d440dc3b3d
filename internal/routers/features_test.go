package routers

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/partup/partup/internal/cucumber"
	"github.com/partup/partup/internal/database"
	"github.com/partup/partup/internal/events"
	"github.com/partup/partup/internal/fflags"
	"github.com/partup/partup/internal/handlers"
	"github.com/partup/partup/internal/networks"
	"github.com/partup/partup/internal/signalbus"
	"github.com/partup/partup/internal/store/gormstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping feature tests in short mode")
	}
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()

	logger := zaptest.NewLogger(t).Sugar()
	db, err := database.NewTestDatabase(logger)
	require.NoError(err)
	store, err := gormstore.New(db)
	require.NoError(err)

	bus := signalbus.NewSignalBus()
	flags := fflags.NewFFlags(logger)
	service := networks.NewService(logger, store, bus, flags)
	api, err := handlers.NewAPI(ctx, logger, service, store, flags)
	require.NoError(err)

	key := []byte("feature-test-signing-key")
	verifier, err := NewStaticKeyVerifier(key)
	require.NoError(err)

	router, err := NewAPIRouter(ctx, APIRouterOptions{
		Logger:   logger,
		Api:      api,
		Service:  service,
		Verifier: verifier,
	})
	require.NoError(err)

	dispatcher := events.NewDispatcher(logger, store, bus, time.Second,
		events.LogSink{Logger: logger},
		events.NotificationSink{Store: store},
	)
	dispatcher.Start(ctx, wg)

	server := httptest.NewServer(router)
	defer server.Close()

	s := cucumber.NewTestSuite()
	s.Context = ctx
	s.ApiURL = server.URL
	s.SigningKey = key
	s.DB = db
	s.TestingT = t
	cucumber.Run(t, s, cucumber.DefaultOptions())
}
