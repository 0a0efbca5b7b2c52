package bot

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/ryosukesatoh/proposal-feed/internal/retry"

	"github.com/ryosukesatoh/proposal-feed/internal/logging"
)

func TestNewRequiresToken(t *testing.T) {
	if _, err := New("  ", logging.Discard()); err == nil {
		t.Error("Expected error for blank token")
	}
}

func TestNewConfiguresSession(t *testing.T) {
	b, err := New("abc.def", logging.Discard())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if b.Session().Token != "Bot abc.def" {
		t.Errorf("Expected bot token prefix, got %q", b.Session().Token)
	}
	if b.Session().Identify.Intents != Intents {
		t.Errorf("Expected intents %d, got %d", Intents, b.Session().Identify.Intents)
	}
}

func TestReadyClosesOnce(t *testing.T) {
	b, err := New("abc.def", logging.Discard())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	select {
	case <-b.Ready():
		t.Fatal("Expected ready to be open before the first Ready event")
	default:
	}

	event := &discordgo.Ready{User: &discordgo.User{Username: "proposal-bot"}}
	b.onReady(nil, event)
	// A reconnect delivers Ready again; it must not panic on a closed channel.
	b.onReady(nil, event)

	select {
	case <-b.Ready():
	default:
		t.Fatal("Expected ready to be closed after the Ready event")
	}
}

func TestReadyToleratesMissingUser(t *testing.T) {
	b, err := New("abc.def", logging.Discard())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	b.onReady(nil, &discordgo.Ready{})

	select {
	case <-b.Ready():
	default:
		t.Fatal("Expected ready to be closed")
	}
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantNil   bool
		permanent bool
	}{
		{"success", nil, true, false},
		{"already open", discordgo.ErrWSAlreadyOpen, true, false},
		{"bad token", &websocket.CloseError{Code: 4004, Text: "Authentication failed."}, false, true},
		{"disallowed intents", &websocket.CloseError{Code: 4014, Text: "Disallowed intent(s)."}, false, true},
		{"server restart", &websocket.CloseError{Code: 4000, Text: "Unknown error"}, false, false},
		{"network", errors.New("dial tcp: i/o timeout"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyOpenError(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Errorf("Expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Expected an error")
			}
			if retry.IsPermanent(got) != tt.permanent {
				t.Errorf("Expected permanent=%v for %v", tt.permanent, got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("Expected original error to be wrapped, got %v", got)
			}
		})
	}
}
