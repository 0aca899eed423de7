package eventbus

// 事件类型定义
const (
	// EventAuthLogin fires after every password login attempt that reached credential comparison.
	EventAuthLogin = "auth:login"

	// EventSystemMessage carries a message for connected panel sockets.
	EventSystemMessage = "system:message"
)

// LoginEventData 登录事件数据
type LoginEventData struct {
	Timestamp int64  `json:"timestamp"`
	IP        string `json:"ip"`
	Address   string `json:"address"`
	Platform  string `json:"platform"`
	Success   bool   `json:"success"`
}

// SystemMessageData 推送给前端的系统消息
type SystemMessageData struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Message types relayed over the panel socket.
const (
	MessageUpdateSystemVersion = "updateSystemVersion"
	MessageLoginNotice         = "loginNotice"
)
