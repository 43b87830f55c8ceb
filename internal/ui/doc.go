// Package ui implements a terminal monitor for the resolution pipeline using bubbletea's Elm architecture.
//
// The screen has three focusable panes:
//  1. [SearchFocus] : a text input taking "artist - track[ - album]" or free text
//  2. [ResultsFocus] : the live, best-first results of the current query
//  3. [ResolversFocus] : every registered resolver with its weight, timeout and state
//
// Result batches flow from the query's [pipeline.Subscription] one message at a time, so the list
// re-sorts as each resolver answers. The resolver pane refreshes on a timer.
//
// Tab cycles focus. Contextual help is rendered with charmbracelet/bubbles/help.
package ui
