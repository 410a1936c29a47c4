// Package realtime 实现 OpenAI Realtime API 的 WebSocket 会话。
//
// 会话负责：
//   - 建连后发送 session.update（人设指令、音色、服务端 VAD、函数列表）
//   - GenerateReply 发起一次回复并返回 SpeechHandle，用于等待播放完成或判断是否被打断
//   - 把模型音频转发给 AudioSink（通常是头像服务）
//   - 收到函数调用时交给 tools.Executor 执行，回传结果后让模型继续回复
//
// 连接断开时所有未完成的 SpeechHandle 以 ErrSessionClosed 结束。
package realtime
