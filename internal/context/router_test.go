package contextpipe_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	"github.com/markdave123-py/memora/internal/core/coretest"
	"github.com/markdave123-py/memora/internal/models"
)

var testIdentity = models.Identity{TenantID: "tenant-a", UserID: 1}

func seedEntry(t *testing.T, store *coretest.FakeStore, contextType string, content models.JSONDoc) {
	t.Helper()
	_, err := store.UpsertEntry(context.Background(), testIdentity.UserID, testIdentity.TenantID, contextType, content, nil, nil)
	require.NoError(t, err)
}

func TestRetrieveOverridePrecedence(t *testing.T) {
	store := coretest.NewFakeStore()
	seedEntry(t, store, "notes", models.JSONDoc{"text": "buy milk"})
	seedEntry(t, store, "github", models.JSONDoc{"repo": "parser", "commits": 3})

	llm := (&coretest.FakeLLM{}).Respond("you noted to buy milk")
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	// The query screams github, but the explicit override wins.
	result, err := router.Retrieve(context.Background(), testIdentity, "what did I commit yesterday?", "notes")
	require.NoError(t, err)

	assert.Equal(t, "notes", result.Domain)
	assert.False(t, result.Defaulted)
	assert.Equal(t, 1, result.RawEntryCount)
	assert.Equal(t, "you noted to buy milk", result.Text)
	require.Equal(t, 1, llm.CallCount(), "override must skip the classifier")
	assert.Contains(t, llm.LastCall().SystemPrompt, "notes")
}

func TestRetrieveUnknownOverrideFallsThroughToClassification(t *testing.T) {
	store := coretest.NewFakeStore()
	seedEntry(t, store, "github", models.JSONDoc{"repo": "parser", "commits": 3})

	llm := (&coretest.FakeLLM{}).Respond("three commits on parser")
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	result, err := router.Retrieve(context.Background(), testIdentity, "what did I commit yesterday?", "not-a-domain")
	require.NoError(t, err)

	assert.Equal(t, "github", result.Domain)
	assert.False(t, result.Defaulted)
	assert.Equal(t, "three commits on parser", result.Text)
}

func TestRetrieveReportsDefaultedClassification(t *testing.T) {
	store := coretest.NewFakeStore()
	seedEntry(t, store, "notes", models.JSONDoc{"text": "remember the milk"})

	// No keyword hit and a broken model: classification defaults, the
	// retrieval still answers from the default domain.
	llm := (&coretest.FakeLLM{}).Fail(errors.New("model down")).Respond("a note about milk")
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	result, err := router.Retrieve(context.Background(), testIdentity, "hmm", "")
	require.NoError(t, err)

	assert.Equal(t, string(contextpipe.DefaultDomain), result.Domain)
	assert.True(t, result.Defaulted)
	assert.Equal(t, "a note about milk", result.Text)
}

func TestRetrieveEmptyDomainSkipsSummarization(t *testing.T) {
	store := coretest.NewFakeStore()
	llm := &coretest.FakeLLM{}
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	result, err := router.Retrieve(context.Background(), testIdentity, "any media?", "media")
	require.NoError(t, err)

	assert.Equal(t, 0, result.RawEntryCount)
	assert.Contains(t, result.Text, "No stored media context")
	assert.Zero(t, llm.CallCount())
}

func TestRetrieveSummarizationFailsAfterRetry(t *testing.T) {
	store := coretest.NewFakeStore()
	seedEntry(t, store, "notes", models.JSONDoc{"text": "buy milk"})

	llm := (&coretest.FakeLLM{}).Fail(errors.New("boom"), errors.New("boom again"))
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	_, err := router.Retrieve(context.Background(), testIdentity, "milk?", "notes")

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.SummarizationFailure))
	assert.Equal(t, 2, llm.CallCount(), "exactly one retry")
}

func TestRetrieveSummarizationRetrySucceeds(t *testing.T) {
	store := coretest.NewFakeStore()
	seedEntry(t, store, "notes", models.JSONDoc{"text": "buy milk"})

	llm := (&coretest.FakeLLM{}).Fail(errors.New("flaky")).Respond("second time lucky")
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	result, err := router.Retrieve(context.Background(), testIdentity, "milk?", "notes")
	require.NoError(t, err)

	assert.Equal(t, "second time lucky", result.Text)
	assert.Equal(t, 2, llm.CallCount())
}

func TestRetrieveCancellationPropagates(t *testing.T) {
	store := coretest.NewFakeStore()
	seedEntry(t, store, "notes", models.JSONDoc{"text": "buy milk"})

	llm := &coretest.FakeLLM{Block: true}
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := router.Retrieve(ctx, testIdentity, "milk?", "notes")
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retrieve did not abort after cancellation")
	}
}

func TestFormattedBlockIsBoundedAndMostRecentFirst(t *testing.T) {
	store := coretest.NewFakeStore()
	for i := 0; i < 25; i++ {
		seedEntry(t, store, "notes", models.JSONDoc{"text": fmt.Sprintf("note %02d", i)})
	}

	llm := (&coretest.FakeLLM{}).Respond("summary")
	router := contextpipe.NewRouter(store, llm, contextpipe.Fetchers{}, zap.NewNop())

	result, err := router.Retrieve(context.Background(), testIdentity, "notes?", "notes")
	require.NoError(t, err)
	assert.Equal(t, 20, result.RawEntryCount)

	prompt := llm.LastCall().UserPrompt
	assert.Equal(t, 20, strings.Count(prompt, "--- Entry"), "block must be capped")
	assert.Contains(t, prompt, "note 24", "most recent entry must survive truncation")
	assert.NotContains(t, prompt, "note 00", "oldest entries are dropped first")
	assert.Less(t, strings.Index(prompt, "note 24"), strings.Index(prompt, "note 23"),
		"entries are ordered most recent first")
}
