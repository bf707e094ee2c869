package sink

import (
	"errors"

	"pandad/internal/messaging"
)

// MultiWriter fans events out to several writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteEvent writes to every writer. A failing writer does not starve the rest.
func (mw *MultiWriter) WriteEvent(topic messaging.Topic, ev messaging.Event) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteEvent(topic, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
