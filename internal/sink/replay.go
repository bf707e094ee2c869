package sink

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// ReplayLog feeds records written by FileWriter back into w. A speed > 0 paces
// playback by the recorded event times divided by speed; otherwise no delay is inserted.
func ReplayLog(r io.Reader, w Writer, speed float64) error {
	dec := json.NewDecoder(r)
	var prev int64
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if prev != 0 && speed > 0 {
			diff := time.Duration(float64(rec.LogMonoTime-prev) / speed)
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := w.WriteEvent(rec.Topic, rec.Event); err != nil {
			return err
		}
		prev = rec.LogMonoTime
	}
}

// ReplayLogFile opens path and replays its records.
func ReplayLogFile(path string, w Writer, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, w, speed)
}
