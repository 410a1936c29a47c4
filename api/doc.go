// Package api 定义 pptagent 控制 API 的请求与响应结构。
//
// # 端点概览
//
//   - POST   /api/v1/sessions                    派发演示会话
//   - GET    /api/v1/sessions                    列出运行中的会话
//   - GET    /api/v1/sessions/{room}             会话快照
//   - DELETE /api/v1/sessions/{room}             结束会话
//   - POST   /api/v1/sessions/{room}/navigate    翻页
//   - POST   /api/v1/sessions/{room}/messages    发送文字
//   - POST   /api/v1/sessions/{room}/interrupt   打断讲解
//   - GET    /api/v1/sessions/{room}/audio       websocket 推送 PCM16 24kHz 音频
//   - GET    /api/v1/history                     历史会话（配置数据库时可用）
//   - GET    /api/v1/config                      脱敏后的当前配置
//   - POST   /webhook/livekit                   LiveKit webhook
//
// # 鉴权
//
// 配置 server.api_keys 后，/api/v1 下的端点需要携带 X-API-Key 请求头。
// 健康检查与 webhook 不需要 API Key，webhook 通过 LiveKit 签名校验。
package api
