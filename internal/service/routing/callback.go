package routing

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
	"github.com/open-builders/feedback-relay/internal/service/telegram"
)

// Action is an operator control attached to forwarded messages.
type Action int

const (
	ActionBlock Action = iota + 1
	ActionUnblock
	ActionWhois
)

var actionNames = map[Action]string{
	ActionBlock:   "block",
	ActionUnblock: "unblock",
	ActionWhois:   "whois",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Callback is a decoded control press. Its wire form is "{action}_{user_id}".
type Callback struct {
	Action Action
	UserID int64
}

func (c Callback) String() string {
	return fmt.Sprintf("%s_%d", c.Action, c.UserID)
}

// ParseCallback decodes callback data. Unknown actions, missing or non-positive
// user ids are rejected with MALFORMED_CALLBACK.
func ParseCallback(data string) (Callback, error) {
	name, rawID, ok := strings.Cut(data, "_")
	if !ok {
		return Callback{}, apperrors.NewMalformedCallbackError(data)
	}
	var action Action
	for a, n := range actionNames {
		if n == name {
			action = a
			break
		}
	}
	if action == 0 {
		return Callback{}, apperrors.NewMalformedCallbackError(data)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Callback{}, apperrors.NewMalformedCallbackError(data)
	}
	return Callback{Action: action, UserID: id}, nil
}

func button(text string, cb Callback) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: cb.String()}
}

// OperatorControls is the keyboard attached to every message copied to the operator.
func OperatorControls(userID int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		button(labelWhois, Callback{Action: ActionWhois, UserID: userID}),
		button(labelBlock, Callback{Action: ActionBlock, UserID: userID}),
	}}}
}

// UnblockControls is attached to the "user blocked" notice.
func UnblockControls(userID int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		button(labelUnblock, Callback{Action: ActionUnblock, UserID: userID}),
	}}}
}
