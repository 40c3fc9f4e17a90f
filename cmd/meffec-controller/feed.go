package main

import (
	"context"

	"github.com/breaktools/meffec/internal/app"
	tea "github.com/charmbracelet/bubbletea"
)

const feedBuffer = 1024

type sender interface {
	Send(tea.Msg)
}

// consoleFeed queues messages for the console until the program exists, so
// hooks and log lines can fire before it starts. Log lines are dropped when
// the queue is full; everything else waits.
type consoleFeed struct {
	msgs chan tea.Msg
}

func newConsoleFeed() *consoleFeed {
	return &consoleFeed{msgs: make(chan tea.Msg, feedBuffer)}
}

func (f *consoleFeed) Send(msg tea.Msg) {
	if _, ok := msg.(app.LogMsg); ok {
		select {
		case f.msgs <- msg:
		default:
		}
		return
	}
	f.msgs <- msg
}

// Forward delivers queued messages to p in order until ctx ends.
func (f *consoleFeed) Forward(ctx context.Context, p sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.msgs:
			p.Send(msg)
		}
	}
}
