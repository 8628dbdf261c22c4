package chat

import "fmt"

// CommandError is the uniform failure signal for a rejected command: a parse
// problem, a missing permission, a precondition that does not hold, or a
// validation failure. The message is shown verbatim to the invoking session,
// so several of the strings below are contract, not decoration.
type CommandError struct {
	Message string
}

// Error returns the user-facing message.
func (e *CommandError) Error() string {
	return e.Message
}

func commandError(message string) *CommandError {
	return &CommandError{Message: message}
}

func commandErrorf(format string, args ...any) *CommandError {
	return &CommandError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotLoggedIn reports that the session has no authenticated user.
func ErrNotLoggedIn() *CommandError {
	return commandError(msgNotLoggedIn)
}

// ErrNoActiveRoom reports that the session has no active room for messages.
func ErrNoActiveRoom() *CommandError {
	return commandError(msgNoActiveRoom)
}

// Fixed user-facing messages.
const (
	msgRoomLocked = "Unable to join room. This room is locked and you don't have permission to enter. " +
		"If you have an invite code, make sure to enter it in the /join command"
	msgNotAdmin          = "You are not an admin."
	msgBroadcastEmpty    = "What did you want to broadcast?"
	msgTopicTooLong      = "Sorry, but your topic is too long. Please keep it under 80 characters."
	msgWelcomeTooLong    = "Sorry, but your welcome is too long. Please keep it under 200 characters."
	msgNoteTooLong       = "Sorry, but your note is too long. Please keep it under 140 characters."
	msgInvalidFlag       = "Sorry, but your flag is not a valid two letter country code."
	msgOnlyPrivateInvite = "Only private rooms can have invite codes"
	msgInvalidOperation  = "Invalid operation."
	msgKickSelf          = "Why would you want to kick yourself?"
	msgMsgSelf           = "You can't private message yourself!"
	msgNudgeSelf         = "You can't nudge yourself!"
	msgSayWhat           = "What did you want to say?"
	msgMeWhat            = "You what?"
	msgAloneUser         = "You're the only person in here..."
	msgNotLoggedIn       = "You're not logged in. Use /nick to pick a name."
	msgNoActiveRoom      = "Use '/join room' to join a room."
	msgNudgeUserCooldown = "User can only be nudged once every 60 seconds."
	msgNudgeRoomCooldown = "Room can only be nudged once every 60 seconds."
)
