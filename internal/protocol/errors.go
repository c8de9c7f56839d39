package protocol

import "strconv"

// ReturnCode is the single byte a server writes in answer to a login block.
type ReturnCode uint8

const (
	CodeWait2Sec              ReturnCode = 1
	CodeSuccess               ReturnCode = 2
	CodeInvalidDetails        ReturnCode = 3
	CodeBanned                ReturnCode = 4
	CodeAlreadyLoggedIn       ReturnCode = 5
	CodeOutdatedClient        ReturnCode = 6
	CodeWorldFull             ReturnCode = 7
	CodeLoginServerOffline    ReturnCode = 8
	CodeLoginLimitExceeded    ReturnCode = 9
	CodeBadSessionID          ReturnCode = 10
	CodeLoginServerRejected   ReturnCode = 11
	CodeMembersWorld          ReturnCode = 12
	CodeCouldNotCompleteLogin ReturnCode = 13
	CodeUpdateInProgress      ReturnCode = 14
	CodeLoginAttemptsExceeded ReturnCode = 16
	CodeMembersArea           ReturnCode = 17
	CodeInvalidLoginServer    ReturnCode = 20
	CodeJustLeftAnotherWorld  ReturnCode = 21
)

var knownCodes = map[ReturnCode]string{
	CodeWait2Sec:              "WAIT_2_SEC",
	CodeSuccess:               "SUCCESS",
	CodeInvalidDetails:        "INVALID_DETAILS",
	CodeBanned:                "BANNED",
	CodeAlreadyLoggedIn:       "ALREADY_LOGGED_IN",
	CodeOutdatedClient:        "OUTDATED_CLIENT",
	CodeWorldFull:             "WORLD_FULL",
	CodeLoginServerOffline:    "LOGIN_SERVER_OFFLINE",
	CodeLoginLimitExceeded:    "LOGIN_LIMIT_EXCEEDED",
	CodeBadSessionID:          "BAD_SESSION_ID",
	CodeLoginServerRejected:   "LOGIN_SERVER_REJECTED",
	CodeMembersWorld:          "MEMBERS_WORLD",
	CodeCouldNotCompleteLogin: "COULD_NOT_COMPLETE_LOGIN",
	CodeUpdateInProgress:      "UPDATE_IN_PROGRESS",
	CodeLoginAttemptsExceeded: "LOGIN_ATTEMPTS_EXCEEDED",
	CodeMembersArea:           "MEMBERS_AREA",
	CodeInvalidLoginServer:    "INVALID_LOGIN_SERVER",
	CodeJustLeftAnotherWorld:  "JUST_LEFT_ANOTHER_WORLD",
}

func IsKnownCode(c ReturnCode) bool {
	_, ok := knownCodes[c]
	return ok
}

func (c ReturnCode) String() string {
	if s, ok := knownCodes[c]; ok {
		return s
	}
	return "CODE_" + strconv.Itoa(int(c))
}
