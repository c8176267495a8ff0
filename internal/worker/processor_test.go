package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"skribe/internal/queue"
	"skribe/internal/transcriber"
	"skribe/pkg/logger"
	"skribe/pkg/model"
	"skribe/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

type MockDB struct {
	mock.Mock
}

func (m *MockDB) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockDB) UpdateTask(ctx context.Context, task *model.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockDB) CreateTranscript(ctx context.Context, transcript *model.Transcript) error {
	args := m.Called(ctx, transcript)
	return args.Error(0)
}

type MockS3 struct {
	mock.Mock
}

func (m *MockS3) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, body, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockS3) GenerateKey(taskID, extension string) string {
	args := m.Called(taskID, extension)
	return args.String(0)
}

// stubTranscriber returns a canned transcript or error
type stubTranscriber struct {
	text    string
	backend string
	err     error

	gotReq transcriber.Request
}

func (s *stubTranscriber) TranscribeWithBackend(ctx context.Context, req transcriber.Request) (string, string, error) {
	s.gotReq = req
	if s.err != nil {
		return "", "", s.err
	}
	return s.text, s.backend, nil
}

func fastRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
	}
}

func newTestProcessor(db *MockDB, s3 *MockS3, svc Transcriber) (*Processor, *[]string) {
	p := NewProcessor(db, s3, svc, nil, nil)
	p.retryConfig = fastRetryConfig()
	p.download = func(fileID string) ([]byte, error) {
		return []byte("audio-bytes"), nil
	}

	var sent []string
	p.send = func(chatID, replyToMessageID int64, text string) error {
		sent = append(sent, text)
		return nil
	}

	return p, &sent
}

func queuedTask(id string) *model.Task {
	return &model.Task{
		ID:        id,
		MessageID: 7,
		ChatID:    42,
		FileID:    "file-1",
		Status:    model.TaskStatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func jobPayload(t *testing.T, taskID string) []byte {
	t.Helper()
	body, err := json.Marshal(&queue.TranscriptionJob{
		TaskID:    taskID,
		ChatID:    42,
		MessageID: 7,
		FileID:    "file-1",
		MimeType:  "audio/ogg",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return body
}

func TestProcessor_ProcessJob_Success(t *testing.T) {
	mockDB := new(MockDB)
	mockS3 := new(MockS3)
	svc := &stubTranscriber{text: "hello world", backend: "whisper"}

	task := queuedTask("task-1")
	mockDB.On("GetTaskByID", mock.Anything, "task-1").Return(task, nil)
	mockDB.On("UpdateTask", mock.Anything, mock.AnythingOfType("*model.Task")).Return(nil)
	mockDB.On("CreateTranscript", mock.Anything, mock.AnythingOfType("*model.Transcript")).
		Run(func(args mock.Arguments) {
			tr := args.Get(1).(*model.Transcript)
			assert.Equal(t, "task-1", tr.TaskID)
			assert.Equal(t, "hello world", tr.Text)
			assert.Equal(t, "whisper", tr.Backend)
			assert.NotEmpty(t, tr.ID)
		}).
		Return(nil)

	mockS3.On("GenerateKey", "task-1", ".ogg").Return("audio/2026/01/01/task-1.ogg")
	mockS3.On("UploadFile", mock.Anything, "audio/2026/01/01/task-1.ogg", mock.Anything, "audio/ogg").
		Return("audio/2026/01/01/task-1.ogg", nil)

	p, sent := newTestProcessor(mockDB, mockS3, svc)

	err := p.ProcessJob(jobPayload(t, "task-1"))
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusDone, task.Status)
	if assert.NotNil(t, task.Backend) {
		assert.Equal(t, "whisper", *task.Backend)
	}
	if assert.NotNil(t, task.AudioKey) {
		assert.Equal(t, "audio/2026/01/01/task-1.ogg", *task.AudioKey)
	}
	require.Len(t, *sent, 1)
	assert.Equal(t, "hello world", (*sent)[0])

	// The transcriber saw a real staged file path
	assert.NotEmpty(t, svc.gotReq.FilePath)

	mockDB.AssertExpectations(t)
	mockS3.AssertExpectations(t)
}

func TestProcessor_ProcessJob_NoSpeech(t *testing.T) {
	mockDB := new(MockDB)
	mockS3 := new(MockS3)
	svc := &stubTranscriber{text: "", backend: "vosk"}

	task := queuedTask("task-2")
	mockDB.On("GetTaskByID", mock.Anything, "task-2").Return(task, nil)
	mockDB.On("UpdateTask", mock.Anything, mock.Anything).Return(nil)
	mockDB.On("CreateTranscript", mock.Anything, mock.Anything).Return(nil)

	mockS3.On("GenerateKey", "task-2", ".ogg").Return("audio/task-2.ogg")
	mockS3.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("audio/task-2.ogg", nil)

	p, sent := newTestProcessor(mockDB, mockS3, svc)

	err := p.ProcessJob(jobPayload(t, "task-2"))
	require.NoError(t, err)

	// Empty transcript is a valid outcome, not a failure
	assert.Equal(t, model.TaskStatusDone, task.Status)
	require.Len(t, *sent, 1)
	assert.Equal(t, "No speech detected in this audio.", (*sent)[0])
}

func TestProcessor_ProcessJob_TranscriptionFailure(t *testing.T) {
	mockDB := new(MockDB)
	mockS3 := new(MockS3)
	svc := &stubTranscriber{err: errors.New("all backends down")}

	task := queuedTask("task-3")
	mockDB.On("GetTaskByID", mock.Anything, "task-3").Return(task, nil)
	mockDB.On("UpdateTask", mock.Anything, mock.Anything).Return(nil)

	mockS3.On("GenerateKey", "task-3", ".ogg").Return("audio/task-3.ogg")
	mockS3.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("audio/task-3.ogg", nil)

	p, sent := newTestProcessor(mockDB, mockS3, svc)

	err := p.ProcessJob(jobPayload(t, "task-3"))
	require.Error(t, err)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.NotNil(t, task.ErrorText)
	assert.Empty(t, *sent)

	mockDB.AssertNotCalled(t, "CreateTranscript", mock.Anything, mock.Anything)
}

func TestProcessor_ProcessJob_DownloadFailureRetries(t *testing.T) {
	mockDB := new(MockDB)
	mockS3 := new(MockS3)
	svc := &stubTranscriber{text: "unused", backend: "whisper"}

	task := queuedTask("task-4")
	mockDB.On("GetTaskByID", mock.Anything, "task-4").Return(task, nil)
	mockDB.On("UpdateTask", mock.Anything, mock.Anything).Return(nil)

	p, _ := newTestProcessor(mockDB, mockS3, svc)

	attempts := 0
	p.download = func(fileID string) ([]byte, error) {
		attempts++
		return nil, errors.New("telegram unavailable")
	}

	err := p.ProcessJob(jobPayload(t, "task-4"))
	require.Error(t, err)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, model.TaskStatusFailed, task.Status)

	mockS3.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_ProcessJob_S3FailureIsNotFatal(t *testing.T) {
	mockDB := new(MockDB)
	mockS3 := new(MockS3)
	svc := &stubTranscriber{text: "still works", backend: "whisper-gradio"}

	task := queuedTask("task-5")
	mockDB.On("GetTaskByID", mock.Anything, "task-5").Return(task, nil)
	mockDB.On("UpdateTask", mock.Anything, mock.Anything).Return(nil)
	mockDB.On("CreateTranscript", mock.Anything, mock.Anything).Return(nil)

	mockS3.On("GenerateKey", "task-5", ".ogg").Return("audio/task-5.ogg")
	mockS3.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("S3 connection failed"))

	p, sent := newTestProcessor(mockDB, mockS3, svc)

	err := p.ProcessJob(jobPayload(t, "task-5"))
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusDone, task.Status)
	assert.Nil(t, task.AudioKey)
	require.Len(t, *sent, 1)
	assert.Equal(t, "still works", (*sent)[0])
}

func TestProcessor_ProcessJob_BadPayload(t *testing.T) {
	p, _ := newTestProcessor(new(MockDB), new(MockS3), &stubTranscriber{})

	err := p.ProcessJob([]byte("{not json"))
	assert.Error(t, err)
}

func TestProcessor_HandleTaskError(t *testing.T) {
	mockDB := new(MockDB)
	ctx := context.Background()

	task := &model.Task{
		ID:        "task-123",
		Status:    model.TaskStatusInProgress,
		Attempts:  0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	mockDB.On("UpdateTask", ctx, mock.AnythingOfType("*model.Task")).Return(nil)

	p, _ := newTestProcessor(mockDB, new(MockS3), &stubTranscriber{})
	p.handleTaskError(ctx, task, "test error")

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)
	if assert.NotNil(t, task.ErrorText) {
		assert.Equal(t, "test error", *task.ErrorText)
	}

	mockDB.AssertExpectations(t)
}

func TestExtFromMime(t *testing.T) {
	tests := []struct {
		mimeType string
		expected string
	}{
		{"audio/ogg", ".ogg"},
		{"audio/opus", ".ogg"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"audio/x-wav", ".wav"},
		{"audio/flac", ".flac"},
		{"audio/aac", ".aac"},
		{"application/octet-stream", ".ogg"},
		{"", ".ogg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, extFromMime(tt.mimeType), tt.mimeType)
	}
}

func TestWriteTempAudio(t *testing.T) {
	path, cleanup, err := writeTempAudio([]byte("abc"), ".wav")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
