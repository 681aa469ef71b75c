/*
Copyright 2026 The Gantry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package build

import (
	"bytes"
	"io"

	"github.com/acarl005/stripansi"
	"github.com/segmentio/textio"
)

// scrubWriter strips ANSI escapes line by line before the log reaches the
// task's log file, so persisted logs stay readable in a browser.
type scrubWriter struct {
	out io.Writer
	buf bytes.Buffer
}

func newScrubWriter(out io.Writer) *scrubWriter {
	return &scrubWriter{out: out}
}

func (w *scrubWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line: keep it buffered until the newline arrives.
			w.buf.Write(line)
			break
		}
		if _, err := w.out.Write([]byte(stripansi.Strip(string(line)))); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes out any trailing partial line.
func (w *scrubWriter) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	line := w.buf.String()
	w.buf.Reset()
	_, err := w.out.Write([]byte(stripansi.Strip(line)))
	return err
}

// serviceWriter prefixes every log line with the service it belongs to.
func serviceWriter(out io.Writer, service string) io.Writer {
	if service == "" {
		return out
	}
	return textio.NewPrefixWriter(out, "["+service+"] ")
}
