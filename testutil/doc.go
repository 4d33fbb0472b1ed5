/*
Package testutil 提供 RAGFlow 测试的共享工具。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 轨迹断言: StepNames / AssertStepNames / AssertHasStep
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/mocks: ScriptedCompleter（按任务名排队回复的补全服务）、
    FakeIndex（相似度索引）、FakeWebSearch（网络搜索）、MockProvider（llm.Provider）
  - testutil/fixtures: 结构化回复与示例段落工厂
*/
package testutil
