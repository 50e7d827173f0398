// Names of the remote methods and callbacks Paddock exchanges with a
// dedicated server. Only what the translators consume is listed, the remote
// surface is much larger.

package control

// Request methods.
const (
	MethodAuthenticate       = "Authenticate"
	MethodSetApiVersion      = "SetApiVersion"
	MethodEnableCallbacks    = "EnableCallbacks"
	MethodGetPlayerList      = "GetPlayerList"
	MethodGetPlayerInfo      = "GetPlayerInfo"
	MethodGetCurrentMapInfo  = "GetCurrentMapInfo"
	MethodGetMapList         = "GetMapList"
	MethodChooseNextMap      = "ChooseNextMap"
	MethodChatSendToServer   = "ChatSendServerMessage"
	MethodChatSendToLogin    = "ChatSendServerMessageToLogin"
	MethodGetModeScriptInfo  = "GetModeScriptInfo"
)

// Direct callbacks.
const (
	CbPlayerConnect      = "PlayerConnect"
	CbPlayerDisconnect   = "PlayerDisconnect"
	CbPlayerInfoChanged  = "PlayerInfoChanged"
	CbPlayerChat         = "PlayerChat"
	CbBeginMap           = "BeginMap"
	CbEndMap             = "EndMap"
	CbModeScriptCallback = "ModeScriptCallbackArray"
)

// Mode-script sub-events, carried inside CbModeScriptCallback as a
// [name, JSON-string] pair. Unknown names are ignored by the dispatcher.
const (
	ScriptBeginMatch       = "Race.BeginMatch"
	ScriptEndMatch         = "Race.EndMatch"
	ScriptBeginRound       = "Race.BeginRound"
	ScriptEndRound         = "Race.EndRound"
	ScriptWayPoint         = "Race.WayPoint"
	ScriptGiveUp           = "Race.GiveUp"
	ScriptPodiumStart      = "Race.PodiumStart"
	ScriptWarmUpStart      = "Race.WarmUp.Start"
	ScriptWarmUpEnd        = "Race.WarmUp.End"
	ScriptWarmUpStartRound = "Race.WarmUp.StartRound"
	ScriptPauseStatus      = "Race.Pause.Status"
	ScriptElimination      = "Race.Elimination"
	ScriptUpdatedSettings  = "Race.UpdatedSettings"
	ScriptScores           = "Race.Scores"
)
