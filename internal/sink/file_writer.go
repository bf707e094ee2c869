package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"pandad/internal/messaging"
)

// Record is one JSONL line.
type Record struct {
	Topic messaging.Topic `json:"topic"`
	messaging.Event
}

// FileWriter appends events to a JSONL file.
type FileWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry log: %w", err)
	}
	return &FileWriter{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *FileWriter) WriteEvent(topic messaging.Topic, ev messaging.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(Record{Topic: topic, Event: ev})
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	return w.f.Close()
}

// JSONStdoutWriter prints events as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) WriteEvent(topic messaging.Topic, ev messaging.Event) error {
	data, err := json.Marshal(Record{Topic: topic, Event: ev})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
