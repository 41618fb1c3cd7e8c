// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/latchkey/latchkey/pkg/errutil"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"standard error", errors.New("plain"), ""},
		{"oops without code", oops.Errorf("no code"), ""},
		{"coded", oops.Code("AUTH_WEAK_PASSWORD").Errorf("short"), "AUTH_WEAK_PASSWORD"},
		{"wrapped by fmt", fmt.Errorf("outer: %w", oops.Code("RESET_TOKEN_INVALID").Errorf("bad")), "RESET_TOKEN_INVALID"},
		{"nested codes", oops.Code("OUTER").Wrap(oops.Code("INNER").Errorf("x")), "INNER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}
