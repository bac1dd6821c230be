package app

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type allChannelsCloseCase struct {
	name                    string
	giveNumChannels         int
	giveCancelBeforeClosing bool
	wantClosed              bool
}

func TestAllChannelsClose(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	tests := []allChannelsCloseCase{
		{
			name:            "zero channels closes immediately",
			giveNumChannels: 0,
			wantClosed:      true,
		},
		{
			name:            "one channel closes when it closes",
			giveNumChannels: 1,
			wantClosed:      true,
		},
		{
			name:            "two channels close when both close",
			giveNumChannels: 2,
			wantClosed:      true,
		},
		{
			name:                    "cancelled context stops the wait",
			giveNumChannels:         2,
			giveCancelBeforeClosing: true,
			wantClosed:              false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			chans := make([]<-chan struct{}, 0, tt.giveNumChannels)
			readyChans := make([]chan struct{}, 0, tt.giveNumChannels)

			for range tt.giveNumChannels {
				ch := make(chan struct{})

				readyChans = append(readyChans, ch)
				chans = append(chans, ch)
			}

			out := allChannelsClose(ctx, logger, chans...)

			if tt.giveCancelBeforeClosing {
				// Inputs stay open so only the cancellation can end the wait.
				cancel()
			} else {
				for _, ch := range readyChans {
					close(ch)
				}
			}

			select {
			case <-out:
				if !tt.wantClosed {
					t.Fatal("expected out channel to stay open")
				}
			case <-time.After(100 * time.Millisecond):
				if tt.wantClosed {
					t.Fatal("expected out channel to close")
				}
			}
		})
	}
}
