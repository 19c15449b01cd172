// Package columns edits a user's column selection: the ordered list of
// visible columns and the list of columns that can still be added.
package columns

import (
	"errors"
	"fmt"
	"slices"
)

// Command is an editor transition.
type Command string

const (
	Remove   Command = "remove"
	Add      Command = "add"
	MoveUp   Command = "move-up"
	MoveDown Command = "move-down"
)

var (
	// ErrNotInCurrent means a remove or move named a column that is not
	// visible.
	ErrNotInCurrent = errors.New("column is not in the current columns")
	// ErrNotAvailable means an add named a column that is not available.
	ErrNotAvailable = errors.New("column is not in the available columns")
	// ErrUnknownCommand means the command is not one of the four transitions.
	ErrUnknownCommand = errors.New("unknown column command")
)

// State is the (current, available) pair. The two lists are disjoint and
// together hold every recognised column.
type State struct {
	Current   []string `json:"current"`
	Available []string `json:"available"`
}

// NewState builds the initial pair: current as given (unknown and duplicate
// names dropped), every other recognised column available in canonical
// order.
func NewState(all, current []string) State {
	s := State{
		Current:   make([]string, 0, len(current)),
		Available: make([]string, 0, len(all)),
	}
	for _, c := range current {
		if slices.Contains(all, c) && !slices.Contains(s.Current, c) {
			s.Current = append(s.Current, c)
		}
	}
	for _, c := range all {
		if !slices.Contains(s.Current, c) {
			s.Available = append(s.Available, c)
		}
	}
	return s
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{Current: slices.Clone(s.Current), Available: slices.Clone(s.Available)}
}

// Editor applies commands to states drawn from one column vocabulary.
type Editor struct {
	all []string
}

// NewEditor returns an editor for the given vocabulary, in canonical order.
func NewEditor(all []string) *Editor {
	return &Editor{all: slices.Clone(all)}
}

// Initial builds the starting pair for a new session.
func (e *Editor) Initial(current []string) State {
	return NewState(e.all, current)
}

// Apply runs one command against the pair and returns the new pair and the
// column acted on. Removed columns go back to their canonical position in
// the available list, so an add followed by a remove restores the pair.
// The input state is never modified; on error it is returned unchanged.
func (e *Editor) Apply(s State, cmd Command, column string) (State, string, error) {
	next := s.Clone()

	switch cmd {
	case Remove:
		i := slices.Index(next.Current, column)
		if i < 0 {
			return s, column, fmt.Errorf("remove %q: %w", column, ErrNotInCurrent)
		}
		next.Current = slices.Delete(next.Current, i, i+1)
		next.Available = e.insertAvailable(next.Available, column)

	case Add:
		i := slices.Index(next.Available, column)
		if i < 0 {
			return s, column, fmt.Errorf("add %q: %w", column, ErrNotAvailable)
		}
		next.Available = slices.Delete(next.Available, i, i+1)
		next.Current = append(next.Current, column)

	case MoveUp, MoveDown:
		i := slices.Index(next.Current, column)
		if i < 0 {
			return s, column, fmt.Errorf("%s %q: %w", cmd, column, ErrNotInCurrent)
		}
		j := i - 1
		if cmd == MoveDown {
			j = i + 1
		}
		if j >= 0 && j < len(next.Current) {
			next.Current[i], next.Current[j] = next.Current[j], next.Current[i]
		}

	default:
		return s, column, fmt.Errorf("%q: %w", cmd, ErrUnknownCommand)
	}

	return next, column, nil
}

// insertAvailable puts column before the first available column that
// follows it canonically. Columns outside the vocabulary go last.
func (e *Editor) insertAvailable(available []string, column string) []string {
	rank := slices.Index(e.all, column)
	if rank < 0 {
		return append(available, column)
	}
	for i, c := range available {
		if r := slices.Index(e.all, c); r < 0 || r > rank {
			return slices.Insert(available, i, column)
		}
	}
	return append(available, column)
}
