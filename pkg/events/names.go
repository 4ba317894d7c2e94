package events

// Realtime event names. Client and server share one namespace; call
// signaling uses the kebab-case names.
const (
	Authenticate  = "authenticate"
	Authenticated = "authenticated"
	Logout        = "logout"
	Register      = "register"
	Error         = "error"

	JoinGroup  = "joinGroup"
	LeaveGroup = "leaveGroup"

	GroupMessage     = "groupMessage"
	NewGroupMessage  = "newGroupMessage"
	GroupMessageSent = "groupMessageSent"
	NewMessage       = "newMessage"
	MessageSent      = "messageSent"
	MessageRead      = "messageRead"
	TypingStart      = "typingStart"
	TypingStop       = "typingStop"

	MessageRecalled          = "messageRecalled"
	RecallGroupMessage       = "recallGroupMessage"
	MessageRecallConfirmed   = "messageRecallConfirmed"
	MessageDeleted           = "messageDeleted"
	MessageDeleteConfirmed   = "messageDeleteConfirmed"
	MessageReaction          = "messageReaction"
	GroupMessageReaction     = "groupMessageReaction"
	MessageReactionConfirmed = "messageReactionConfirmed"
	ForwardMessage           = "forwardMessage"
	MessageForwarded         = "messageForwarded"

	AddMemberGroup    = "addMemberGroup"
	LeaveGroupWeb     = "leaveGroupWeb"
	GroupMessageJoin  = "groupMessageJoin"
	GroupMessageLeave = "groupMessageLeave"
	GroupUpdated      = "groupUpdated"
	GroupDeleted      = "groupDeleted"

	FriendRequestSent      = "friendRequestSent"
	FriendRequestUpdate    = "friendRequestUpdate"
	WithdrawFriendRequest  = "withdrawFriendRequest"
	FriendRequestWithdrawn = "friendRequestWithdrawn"
	WithdrawConfirmed      = "withdrawConfirmed"
	FriendRequestAccepted  = "friendRequestAccepted"
	FriendListUpdate       = "friendListUpdate"
	Unfriend               = "unfriend"

	UserStatus            = "userStatus"
	FriendStatusUpdate    = "friendStatusUpdate"
	InitialFriendStatuses = "initialFriendStatuses"

	CallUser      = "call-user"
	IncomingCall  = "incoming-call"
	CallAccepted  = "call-accepted"
	CallDeclined  = "call-declined"
	CallCancelled = "call-cancelled"
	CallEnded     = "call-ended"
)
