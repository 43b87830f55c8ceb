package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackpipe/internal/pipeline"
	"github.com/desertthunder/trackpipe/internal/resolvers"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgQueryUpdate MsgKind = iota
	MsgQueryDone
	MsgResolversRefreshed
	MsgRefreshTick
)

type queryUpdate struct {
	sub    *pipeline.Subscription
	update pipeline.Update
}

// queryUpdateMsg is the constructor for [MsgQueryUpdate]
func queryUpdateMsg(sub *pipeline.Subscription, u pipeline.Update) Msg {
	return Msg{kind: MsgQueryUpdate, data: queryUpdate{sub: sub, update: u}}
}

// queryDoneMsg is the constructor for [MsgQueryDone]
func queryDoneMsg(sub *pipeline.Subscription) Msg {
	return Msg{kind: MsgQueryDone, data: sub}
}

// resolversRefreshedMsg is the constructor for [MsgResolversRefreshed]
func resolversRefreshedMsg(rs []resolvers.Resolver) Msg {
	return Msg{kind: MsgResolversRefreshed, data: rs}
}

// refreshTickMsg is the constructor for [MsgRefreshTick]
func refreshTickMsg() Msg {
	return Msg{kind: MsgRefreshTick}
}
