package e2e

import (
	"context"
	"fmt"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/provider"
	"github.com/kastelov/lexitrain/internal/store"
)

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger   *zap.Logger
	testStore    *store.Store
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("lexitrain_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// seedProfile creates a user with an active Russian A1 profile and adds the
// given words, each translated to English.
func seedProfile(t *testing.T, externalID string, words map[string]string) (*store.Profile, map[string]*store.UserWord) {
	t.Helper()
	ctx := context.Background()

	user, err := testStore.CreateUser(ctx, &store.User{
		Platform:        "rest",
		ExternalID:      externalID,
		ChannelID:       "ch-" + externalID,
		NativeLang:      "en",
		InterfaceLang:   "en",
		TZ:              "UTC",
		NotificationsOn: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	profile, err := testStore.SwitchActiveProfile(ctx, user.ID, "ru", "A1")
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	userWords := make(map[string]*store.UserWord, len(words))
	for text, translation := range words {
		uw, err := testStore.AddWordToVocabulary(ctx, profile.ID, &store.Word{
			Text:         text,
			Language:     "ru",
			CEFR:         "A1",
			Translations: map[string][]string{"en": {translation}},
		}, 2.5)
		if err != nil {
			t.Fatalf("add word %s: %v", text, err)
		}
		userWords[text] = uw
	}
	return profile, userWords
}

// scriptedProvider returns canned completions in order, cycling on the last.
type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (string, error) {
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	return p.replies[i], nil
}

func (p *scriptedProvider) HealthCheck(ctx context.Context) error { return nil }
