package api

// =============================================================================
// 会话控制请求
// =============================================================================

// DispatchRequest 派发一个演示会话到房间
type DispatchRequest struct {
	// LiveKit 房间名
	Room string `json:"room"`
}

// NavigateRequest 外部翻页
type NavigateRequest struct {
	// next, previous, goto
	Action string `json:"action"`
	// goto 时的目标页（从 1 开始）
	SlideNumber int `json:"slide_number,omitempty"`
}

// NavigateResponse 翻页结果，与语音模型收到的工具回复一致
type NavigateResponse struct {
	Reply string `json:"reply"`
}

// MessageRequest 以用户身份发送文字
type MessageRequest struct {
	Text string `json:"text"`
}

// =============================================================================
// 音频推流协议
// =============================================================================

// AudioControlInterrupt 客户端通过文本帧发送该指令以打断当前讲解
const AudioControlInterrupt = "interrupt"
