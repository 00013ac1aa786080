package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docuvault/internal/audit"
	"docuvault/internal/model"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

type fixture struct {
	store  *Store
	db     *gorm.DB
	scope  *tenantdb.Scope
	userID string
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ChatSession{}, &model.ChatMessage{}, &model.AuditLog{}))

	keys, err := security.NewKeyService("test-master-secret", "production", zap.NewNop())
	require.NoError(t, err)

	store := NewStore(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		keys,
		security.NewFieldCipher(true),
		nil, // no redis in unit tests
		audit.NewRecorder(repository.NewAuditRepository(db), zap.NewNop()),
		zap.NewNop(),
	)

	scope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)
	return &fixture{store: store, db: db, scope: scope, userID: uuid.NewString()}
}

func TestGetOrCreateActiveSessionReuses(t *testing.T) {
	f := newFixture(t)

	first, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	second, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateActiveSessionPerUser(t *testing.T) {
	f := newFixture(t)

	a, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	b, err := f.store.GetOrCreateActiveSession(f.scope, uuid.NewString())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestAddMessageEncryptsAtRest(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	_, err = f.store.AddMessage(context.Background(), f.scope, AddMessageInput{
		SessionID: session.ID,
		UserID:    f.userID,
		Role:      model.RoleUser,
		Text:      "confidential question text",
	})
	require.NoError(t, err)

	var row model.ChatMessage
	require.NoError(t, f.db.First(&row).Error)
	assert.NotContains(t, string(row.TextEncrypted), "confidential")
}

func TestAddMessageAutoTitlesFromFirstUserMessage(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: model.RoleUser, Text: "what is our refund policy?",
	})
	require.NoError(t, err)
	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: model.RoleUser, Text: "a different later question",
	})
	require.NoError(t, err)

	sessions, err := f.store.ListSessions(f.scope, f.userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "what is our refund policy?", sessions[0].Title)
}

func TestAddMessageTruncatesLongTitle(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	long := strings.Repeat("な", 80)
	_, err = f.store.AddMessage(context.Background(), f.scope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: model.RoleUser, Text: long,
	})
	require.NoError(t, err)

	sessions, err := f.store.ListSessions(f.scope, f.userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, strings.Repeat("な", 50)+"...", sessions[0].Title)
}

func TestAddMessageRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: "narrator", Text: "x",
	})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: model.RoleUser, Text: "   ",
	})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: uuid.NewString(), UserID: f.userID, Role: model.RoleUser, Text: "x",
	})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestAddMessageWrongTenantNotFound(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	otherScope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)

	_, err = f.store.AddMessage(context.Background(), otherScope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: model.RoleUser, Text: "x",
	})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestListMessagesRoundTrip(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: session.ID, UserID: f.userID, Role: model.RoleUser, Text: "the question",
	})
	require.NoError(t, err)
	_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
		SessionID: session.ID,
		UserID:    f.userID,
		Role:      model.RoleAssistant,
		Text:      "the answer",
		EvidenceChunkIDs: []string{
			"11111111-1111-1111-1111-111111111111",
			"22222222-2222-2222-2222-222222222222",
		},
		ModelUsed: "test-model",
	})
	require.NoError(t, err)

	messages, err := f.store.ListMessages(ctx, f.scope, f.userID, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "the question", messages[0].Text)
	assert.Empty(t, messages[0].EvidenceChunkIDs)

	assert.Equal(t, model.RoleAssistant, messages[1].Role)
	assert.Equal(t, "the answer", messages[1].Text)
	assert.Len(t, messages[1].EvidenceChunkIDs, 2)
	assert.Equal(t, "test-model", messages[1].ModelUsed)
}

func TestListMessagesLimitKeepsMostRecent(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		_, err = f.store.AddMessage(ctx, f.scope, AddMessageInput{
			SessionID: session.ID,
			UserID:    f.userID,
			Role:      model.RoleUser,
			Text:      fmt.Sprintf("turn %02d", i),
		})
		require.NoError(t, err)
	}

	messages, err := f.store.ListMessages(ctx, f.scope, f.userID, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 10)

	// The bounded window covers the end of the conversation, oldest
	// first within the window.
	assert.Equal(t, "turn 06", messages[0].Text)
	assert.Equal(t, "turn 15", messages[9].Text)
}

func TestListMessagesSkipsDecryptFailuresGracefully(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	// Simulate a row encrypted under a lost key.
	require.NoError(t, f.db.Create(&model.ChatMessage{
		SessionID:     session.ID,
		TenantID:      f.scope.TenantID(),
		Role:          model.RoleUser,
		TextEncrypted: []byte("not real ciphertext but long enough"),
	}).Error)

	messages, err := f.store.ListMessages(context.Background(), f.scope, f.userID, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Empty(t, messages[0].Text)
}

func TestDeleteSessionHidesIt(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, f.store.DeleteSession(ctx, DeleteSessionInput{
		Scope:     f.scope,
		UserID:    f.userID,
		SessionID: session.ID,
	}))

	sessions, err := f.store.ListSessions(f.scope, f.userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = f.store.ListMessages(ctx, f.scope, f.userID, session.ID, 0)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	// A fresh active session is created afterwards.
	next, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, next.ID)
}

func TestDeleteSessionWrongUser(t *testing.T) {
	f := newFixture(t)
	session, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	err = f.store.DeleteSession(context.Background(), DeleteSessionInput{
		Scope:     f.scope,
		UserID:    uuid.NewString(),
		SessionID: session.ID,
	})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSessionsAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.GetOrCreateActiveSession(f.scope, f.userID)
	require.NoError(t, err)

	otherScope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)
	sessions, err := f.store.ListSessions(otherScope, f.userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
