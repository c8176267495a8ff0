package queue

import "time"

// TranscriptionJob is the unit of work the bot hands to the worker pool.
type TranscriptionJob struct {
	TaskID    string    `json:"task_id"`
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	FileID    string    `json:"file_id"`
	Duration  int       `json:"duration"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `json:"mime_type"`
	Model     string    `json:"model,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptionResult reports the outcome of one job.
type TranscriptionResult struct {
	TaskID       string `json:"task_id"`
	Text         string `json:"text"`
	Backend      string `json:"backend"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}
