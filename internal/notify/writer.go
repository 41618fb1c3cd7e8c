// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samber/oops"
)

// WriterTransport prints the text part of each message to a writer. It is
// meant for local development where no mail relay exists.
type WriterTransport struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTransport creates a WriterTransport writing to w.
func NewWriterTransport(w io.Writer) *WriterTransport {
	return &WriterTransport{w: w}
}

// Send writes msg.
func (t *WriterTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, "To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Text)
	if err != nil {
		return oops.Code("NOTIFY_WRITE_FAILED").Wrap(err)
	}
	return nil
}
