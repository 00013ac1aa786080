package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docuvault/internal/audit"
	"docuvault/internal/model"
	"docuvault/internal/notify"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

type capturingPublisher struct {
	published []any
	err       error
}

func (p *capturingPublisher) Publish(ctx context.Context, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, payload)
	return nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	publisher *capturingPublisher
	scope     *tenantdb.Scope
	userID    string
	messageID string
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ChatMessage{}, &model.Feedback{}, &model.AuditLog{}))

	keys, err := security.NewKeyService("test-master-secret", "production", zap.NewNop())
	require.NoError(t, err)

	publisher := &capturingPublisher{}
	svc := NewService(
		repository.NewFeedbackRepository(db),
		repository.NewMessageRepository(db),
		keys,
		security.NewFieldCipher(true),
		publisher,
		audit.NewRecorder(repository.NewAuditRepository(db), zap.NewNop()),
		zap.NewNop(),
	)

	scope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)

	message := &model.ChatMessage{
		SessionID:     uuid.NewString(),
		TenantID:      scope.TenantID(),
		Role:          model.RoleAssistant,
		TextEncrypted: []byte{1},
	}
	require.NoError(t, db.Create(message).Error)

	return &fixture{
		svc:       svc,
		db:        db,
		publisher: publisher,
		scope:     scope,
		userID:    uuid.NewString(),
		messageID: message.ID,
	}
}

func TestSubmitStoresFeedback(t *testing.T) {
	f := newFixture(t)

	fb, err := f.svc.Submit(context.Background(), SubmitInput{
		Scope:     f.scope,
		UserID:    f.userID,
		MessageID: f.messageID,
		Rating:    model.RatingYes,
		Comment:   "helpful answer",
	})
	require.NoError(t, err)

	assert.Equal(t, model.RatingYes, fb.Rating)
	assert.NotContains(t, string(fb.CommentEncrypted), "helpful")
	// Positive ratings do not page anyone.
	assert.Empty(t, f.publisher.published)
}

func TestSubmitNegativeRatingQueuesNotification(t *testing.T) {
	f := newFixture(t)

	fb, err := f.svc.Submit(context.Background(), SubmitInput{
		Scope:     f.scope,
		UserID:    f.userID,
		MessageID: f.messageID,
		Rating:    model.RatingNo,
	})
	require.NoError(t, err)

	require.Len(t, f.publisher.published, 1)
	n, ok := f.publisher.published[0].(notify.Notification)
	require.True(t, ok)
	assert.Equal(t, fb.ID, n.FeedbackID)
	assert.Equal(t, f.scope.TenantID(), n.TenantID)
	assert.Equal(t, model.RatingNo, n.Rating)
}

func TestSubmitPublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		Scope:     f.scope,
		UserID:    f.userID,
		MessageID: f.messageID,
		Rating:    model.RatingNo,
	})
	assert.NoError(t, err)
}

func TestSubmitRepeatUpdatesInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, SubmitInput{
		Scope: f.scope, UserID: f.userID, MessageID: f.messageID, Rating: model.RatingYes,
	})
	require.NoError(t, err)

	second, err := f.svc.Submit(ctx, SubmitInput{
		Scope: f.scope, UserID: f.userID, MessageID: f.messageID, Rating: model.RatingNo,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&model.Feedback{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var stored model.Feedback
	require.NoError(t, f.db.First(&stored).Error)
	assert.Equal(t, model.RatingNo, stored.Rating)
}

func TestSubmitDistinctUsersRateIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitInput{
		Scope: f.scope, UserID: f.userID, MessageID: f.messageID, Rating: model.RatingYes,
	})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, SubmitInput{
		Scope: f.scope, UserID: uuid.NewString(), MessageID: f.messageID, Rating: model.RatingNo,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&model.Feedback{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitInput{
		Scope: f.scope, UserID: f.userID, MessageID: f.messageID, Rating: "maybe",
	})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = f.svc.Submit(ctx, SubmitInput{
		Scope: f.scope, UserID: f.userID, MessageID: uuid.NewString(), Rating: model.RatingYes,
	})
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = f.svc.Submit(ctx, SubmitInput{
		UserID: f.userID, MessageID: f.messageID, Rating: model.RatingYes,
	})
	assert.True(t, errors.Is(err, types.ErrIsolationViolation))
}

func TestSubmitRejectsUserMessageRating(t *testing.T) {
	f := newFixture(t)

	userMsg := &model.ChatMessage{
		SessionID:     uuid.NewString(),
		TenantID:      f.scope.TenantID(),
		Role:          model.RoleUser,
		TextEncrypted: []byte{1},
	}
	require.NoError(t, f.db.Create(userMsg).Error)

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		Scope: f.scope, UserID: f.userID, MessageID: userMsg.ID, Rating: model.RatingYes,
	})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSubmitCrossTenantMessageNotFound(t *testing.T) {
	f := newFixture(t)

	otherScope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), SubmitInput{
		Scope: otherScope, UserID: f.userID, MessageID: f.messageID, Rating: model.RatingYes,
	})
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
