// Package avatar 管理数字人会话。
//
// 数字人服务持有 Worker 下发的 LiveKit token 进入房间并发布音视频，
// 本进程只负责把实时模型输出的 PCM16 音频推送给它。
// Session 同时实现 realtime.AudioSink，可直接挂到实时会话上。
//
// 支持的提供者:
//   - simli: 音频重采样到 16kHz 后以二进制帧推送
//   - anam: 24kHz 音频以 base64 JSON 消息推送
//   - none: 丢弃音频，仅按时长模拟播放，用于本地调试
package avatar
