// go-fhmac
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-fhmac.
//
// go-fhmac is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-fhmac is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-fhmac; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhmac "github.com/ZaparooProject/go-fhmac"
)

func TestWithRetry(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")

	tests := []struct {
		op        func(n int) (int, bool, error)
		wantErr   error
		name      string
		want      int
		wantCalls int
	}{
		{
			name:      "first try",
			op:        func(int) (int, bool, error) { return 7, false, nil },
			want:      7,
			wantCalls: 1,
		},
		{
			name: "succeeds after retries",
			op: func(n int) (int, bool, error) {
				if n < 3 {
					return 0, true, fhmac.ErrRadioBusy
				}
				return 42, false, nil
			},
			want:      42,
			wantCalls: 3,
		},
		{
			name:      "permanent error stops",
			op:        func(int) (int, bool, error) { return 0, false, permanent },
			wantErr:   permanent,
			wantCalls: 1,
		},
		{
			name:      "exhausted keeps cause",
			op:        func(int) (int, bool, error) { return 0, true, fhmac.ErrTransportTimeout },
			wantErr:   fhmac.ErrTransportTimeout,
			wantCalls: 4,
		},
		{
			name:      "exhausted without cause",
			op:        func(int) (int, bool, error) { return 0, true, nil },
			wantErr:   fhmac.ErrCommunicationFailed,
			wantCalls: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls, retries := 0, 0
			cfg := RetryConfig{
				Description: "set-channel",
				Port:        "/dev/ttyACM0",
				MaxRetries:  3,
				OnRetry:     func(int, error) { retries++ },
			}
			got, err := WithRetry(context.Background(), cfg, func() (int, bool, error) {
				calls++
				return tt.op(calls)
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCalls-1, retries)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithRetry_ExhaustedError(t *testing.T) {
	t.Parallel()

	_, err := WithRetry(context.Background(), RetryConfig{Description: "off", Port: "i2c-1"},
		func() (struct{}, bool, error) { return struct{}{}, true, fhmac.ErrRadioBusy })

	var te *fhmac.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "off on i2c-1: radio busy", te.Error())
	assert.True(t, te.Retryable)
}

func TestWithRetry_ContextCancelledBetweenAttempts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, RetryConfig{MaxRetries: 5, RetryDelay: time.Hour},
		func() (int, bool, error) {
			calls++
			cancel()
			return 0, true, nil
		})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestTimeoutRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := TimeoutRetry(context.Background(), time.Second, time.Millisecond,
		func() (string, bool, error) {
			calls++
			if calls < 3 {
				return "", true, nil
			}
			return "ready", false, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ready", got)
	assert.Equal(t, 3, calls)

	_, err = TimeoutRetry(context.Background(), 10*time.Millisecond, time.Millisecond,
		func() (string, bool, error) { return "", true, nil })
	assert.ErrorIs(t, err, fhmac.ErrTransportTimeout)
}
