// Package livekit 封装与 LiveKit 服务端的交互：
//
//   - MintToken：签发房间访问令牌（HS256，API Key 作为 issuer）
//   - RoomClient：RoomService 的 Twirp JSON 客户端（参与者查询、属性更新、移除）
//   - WebhookReceiver：校验并解析 LiveKit webhook 回调
//
// 令牌、RoomService 与 webhook 的协议细节来自 github.com/livekit/protocol，
// 本包只把协议类型转换成 worker 使用的轻量结构。
// 本包不处理媒体传输。音视频由头像服务使用签发的令牌加入房间后发布。
package livekit
