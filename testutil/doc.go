/*
Package testutil 提供 pptagent 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContextWithTimeout，自动注册 Cleanup 防止泄漏
  - 异步断言: WaitSessionEnd / AssertEventuallyTrue / WaitFor

# 子包

  - testutil/mocks: MockSession（演示会话），支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供幻灯片、参会者与 webhook 事件样例

# 使用示例

	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	session := mocks.NewMockSession("room-1").WithNavigateReply("Now on slide 2")
	reply, err := session.Navigate(ctx, "next", 0)
*/
package testutil
