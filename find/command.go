package find

import (
	"fmt"

	"github.com/hazyhaar/pagefind/horosafe"
	"github.com/hazyhaar/pagefind/match"
)

// Command actions.
const (
	ActionStartFind                = "startFind"
	ActionFindNext                 = "findNext"
	ActionFindPrevious             = "findPrevious"
	ActionClearFind                = "clearFind"
	ActionReveal                   = "reveal"
	ActionHideResults              = "hideResults"
	ActionShowResults              = "showResults"
	ActionStartNavigationShortcuts = "startNavigationShortcuts"
	ActionClearNavigationShortcuts = "clearNavigationShortcuts"
)

var actions = map[string]bool{
	ActionStartFind:                true,
	ActionFindNext:                 true,
	ActionFindPrevious:             true,
	ActionClearFind:                true,
	ActionReveal:                   true,
	ActionHideResults:              true,
	ActionShowResults:              true,
	ActionStartNavigationShortcuts: true,
	ActionClearNavigationShortcuts: true,
}

// Selection actions carried by navigationSelected updates.
const (
	SelectionOpen = "open"
	SelectionCopy = "copy"
)

// Input limits.
const (
	DefaultInstance  = "default"
	MaxInstanceIDLen = 50
	MaxSearchTermLen = 1000
	MaxCoordinates   = 10
	MaxIdentifierLen = 100
)

// Command is one host request.
type Command struct {
	Action          string            `json:"action"`
	InstanceID      string            `json:"instanceId"`
	SessionSecret   string            `json:"sessionSecret"`
	SearchTerm      string            `json:"searchTerm,omitempty"`
	SearchMode      string            `json:"searchMode,omitempty"`
	ContextLength   *int              `json:"contextLength,omitempty"`
	Identifier      *match.Identifier `json:"identifier,omitempty"`
	SelectionAction string            `json:"selectionAction,omitempty"`
}

// request is the validated form of a Command.
type request struct {
	action          string
	instanceID      string
	term            string
	mode            match.Mode
	contextLen      int
	id              *match.Identifier
	selectionAction string
}

// validate checks the secret first, then normalizes every field. Only the
// action and the secret can fail; everything else is clamped or defaulted.
func (a *Agent) validate(cmd Command) (request, error) {
	if !horosafe.SecretEqual(a.secret, cmd.SessionSecret) {
		return request{}, ErrBadSecret
	}
	if !actions[cmd.Action] {
		return request{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	r := request{
		action:     cmd.Action,
		instanceID: horosafe.SanitizeIdentifier(cmd.InstanceID, MaxInstanceIDLen, DefaultInstance),
		term:       horosafe.SanitizeText(cmd.SearchTerm, MaxSearchTermLen),
		mode:       match.ParseMode(cmd.SearchMode),
		contextLen: a.cfg.ContextLength,
	}
	if cmd.ContextLength != nil {
		r.contextLen = horosafe.ClampInt(*cmd.ContextLength, 0, match.MaxContextLength)
	}
	if cmd.Identifier != nil {
		id := match.Identifier{
			Index: max(0, cmd.Identifier.Index),
			Text:  horosafe.SanitizeText(cmd.Identifier.Text, MaxIdentifierLen),
		}
		coords := cmd.Identifier.Coordinates
		if len(coords) > MaxCoordinates {
			coords = coords[:MaxCoordinates]
		}
		for _, c := range coords {
			id.Coordinates = append(id.Coordinates, max(0, c))
		}
		r.id = &id
	}
	switch cmd.SelectionAction {
	case SelectionCopy:
		r.selectionAction = SelectionCopy
	default:
		r.selectionAction = SelectionOpen
	}
	return r, nil
}
