// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的上下文、轨迹断言与 JSON 辅助
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertStepNames(t, []string{"Query Routing", "Answer Generation"}, state.Steps)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// StepNames 提取轨迹步骤名
func StepNames(steps []types.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

// AssertStepNames 断言轨迹步骤名序列完全一致
func AssertStepNames(t *testing.T, expected []string, steps []types.Step) {
	t.Helper()
	assert.Equal(t, expected, StepNames(steps))
}

// AssertHasStep 断言轨迹包含某个步骤
func AssertHasStep(t *testing.T, steps []types.Step, name string) {
	t.Helper()
	assert.Contains(t, StepNames(steps), name)
}

// AssertJSONEqual 断言两个值序列化后相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	assert.JSONEq(t, MustJSON(expected), MustJSON(actual))
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
