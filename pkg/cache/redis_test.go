package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRedisCache struct {
	mock.Mock
	data map[string]interface{}
}

func NewMockRedisCache() *MockRedisCache {
	return &MockRedisCache{
		data: make(map[string]interface{}),
	}
}

func (m *MockRedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockRedisCache) Set(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	if args.Error(0) == nil {
		m.data[key] = value
	}
	return args.Error(0)
}

func (m *MockRedisCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockRedisCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	if args.Error(0) == nil {
		delete(m.data, key)
	}
	return args.Error(0)
}

func (m *MockRedisCache) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockRedisCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestRedisCache_SetAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	mockCache := NewMockRedisCache()
	ctx := context.Background()

	type TestData struct {
		ID   string
		Text string
	}

	testData := TestData{ID: "123", Text: "transcribed text"}
	key := TranscriptCacheKey("123")

	mockCache.On("Set", ctx, key, testData).Return(nil)
	mockCache.On("Get", ctx, key, mock.AnythingOfType("*cache.TestData")).Return(nil)

	err := mockCache.Set(ctx, key, testData)
	assert.NoError(t, err)

	var got TestData
	err = mockCache.Get(ctx, key, &got)
	assert.NoError(t, err)

	mockCache.AssertExpectations(t)
}

func TestRedisCache_Delete(t *testing.T) {
	mockCache := NewMockRedisCache()
	ctx := context.Background()

	key := TaskCacheKey("task-1")
	mockCache.On("Set", ctx, key, "value").Return(nil)
	mockCache.On("Delete", ctx, key).Return(nil)

	_ = mockCache.Set(ctx, key, "value")
	assert.Contains(t, mockCache.data, key)

	err := mockCache.Delete(ctx, key)
	assert.NoError(t, err)
	assert.NotContains(t, mockCache.data, key)

	mockCache.AssertExpectations(t)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "task:abc", TaskCacheKey("abc"))
	assert.Equal(t, "transcript:abc", TranscriptCacheKey("abc"))
	assert.Equal(t, "chat:active:42", ChatActiveCacheKey(42))
}
