package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, logger.NewNoOpLogger()), mr
}

func TestStore_GetUnknownIdentity(t *testing.T) {
	store, _ := newTestStore(t)

	conv, err := store.Get(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", conv.Identity)
	assert.Equal(t, models.StageStart, conv.Stage)
	assert.Equal(t, models.FlowNone, conv.Flow)
	assert.False(t, conv.NeedsHuman)
}

func TestStore_SaveRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	w, h := 4.0, 6.0
	conv := &models.Conversation{
		Identity: "cust-2",
		Flow:     models.FlowPanel,
		Stage:    models.StageComplete,
		Specs: &models.ProductSpecs{
			Family: models.FlowPanel,
			Width:  &w,
			Height: &h,
		},
		City: "springfield",
	}
	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Get(ctx, "cust-2")
	require.NoError(t, err)
	assert.Equal(t, models.FlowPanel, loaded.Flow)
	assert.Equal(t, models.StageComplete, loaded.Stage)
	require.NotNil(t, loaded.Specs)
	assert.Equal(t, 4.0, *loaded.Specs.Width)
	assert.Equal(t, "springfield", loaded.City)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestStore_CorruptedDocumentResets(t *testing.T) {
	store, mr := newTestStore(t)

	require.NoError(t, mr.Set("conversation:cust-3", "{not json"))

	conv, err := store.Get(context.Background(), "cust-3")
	require.NoError(t, err)
	assert.Equal(t, models.StageStart, conv.Stage)
}

func TestStore_UpdateShallowMerge(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	w, h := 4.0, 6.0
	require.NoError(t, store.Save(ctx, &models.Conversation{
		Identity: "cust-4",
		Flow:     models.FlowPanel,
		Specs: &models.ProductSpecs{
			Family: models.FlowPanel,
			Width:  &w,
			Height: &h,
			Color:  "green",
		},
	}))

	// A patch carrying specs replaces the whole nested object: wholesale
	// replacement, not deep merge.
	patch := map[string]interface{}{
		"lastIntent": "shipping",
		"specs": map[string]interface{}{
			"family": "panel",
			"width":  5.0,
		},
	}
	require.NoError(t, store.Update(ctx, "cust-4", patch))

	raw, err := mr.Get("conversation:cust-4")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, "shipping", doc["lastIntent"])
	// Untouched top-level fields survive.
	assert.Equal(t, "panel", doc["flow"])

	specs, ok := doc["specs"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 5.0, specs["width"])
	// Height and color were dropped by the wholesale replacement.
	_, hasHeight := specs["height"]
	assert.False(t, hasHeight)
	_, hasColor := specs["color"]
	assert.False(t, hasColor)
}

func TestStore_SaveErrorPropagates(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, logger.NewNoOpLogger())

	mock.Regexp().ExpectSet("conversation:cust-6", `.*`, 0).
		SetErr(errors.New("connection refused"))

	err := store.Save(context.Background(), &models.Conversation{Identity: "cust-6"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateUnknownIdentityCreates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "cust-5", map[string]interface{}{
		"lastIntent": "payment",
	}))

	conv, err := store.Get(ctx, "cust-5")
	require.NoError(t, err)
	assert.Equal(t, "cust-5", conv.Identity)
	assert.Equal(t, "payment", conv.LastIntent)
}
