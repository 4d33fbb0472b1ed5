/*
Package config 提供 RAGFlow 的配置结构、默认值与加载器。

配置优先级：默认值 → YAML 文件 → 环境变量（前缀 RAGFLOW）。

检索与编排边界（TopK、MultiQueryCount、MaxDecompositionSteps、
MaxQueryRewrites）在运行期间只读，不会被编排器修改。
*/
package config
