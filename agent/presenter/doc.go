// Package presenter 实现幻灯片演示会话。
//
// 一个 Presenter 对应一个 LiveKit 房间：等待观众在参会者 metadata 中给出
// presentation_id，加载幻灯片，启动数字人与实时语音对话，逐页自动讲解，
// 结束后进入问答，直到房间没有观众或会话被取消。
//
// 翻页状态保存在每个会话自己的 Navigator 中，模型通过
// next_slide / previous_slide / goto_slide 三个工具控制翻页，
// 当前页通过代理参会者的 attributes 发布给前端。
package presenter
