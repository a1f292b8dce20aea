package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAction is returned when an enable action string cannot be parsed
var ErrUnknownAction = errors.New("unknown enable action")

// EnableAction is the state change requested for a selection of mods
type EnableAction int

const (
	ActionEnable EnableAction = iota
	ActionDisable
	ActionToggle
)

func (a EnableAction) String() string {
	switch a {
	case ActionEnable:
		return "enable"
	case ActionDisable:
		return "disable"
	case ActionToggle:
		return "toggle"
	default:
		return fmt.Sprintf("EnableAction(%d)", int(a))
	}
}

// ParseEnableAction parses "enable", "disable" or "toggle" (case-insensitive)
func ParseEnableAction(s string) (EnableAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enable":
		return ActionEnable, nil
	case "disable":
		return ActionDisable, nil
	case "toggle":
		return ActionToggle, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a EnableAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *EnableAction) UnmarshalText(b []byte) error {
	parsed, err := ParseEnableAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
