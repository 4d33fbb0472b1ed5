/*
Package rag 提供检索相关的基础能力：

  - Index               — 相似度索引契约：Search(query, k) 返回有序段落
  - MemoryIndex         — 进程内索引（有 Embedder 时余弦相似度，否则词项重叠）
  - PGVectorIndex       — 基于 PostgreSQL + pgvector 的索引
  - MultiQueryRetriever — 多角度查询生成 + 按内容前缀去重的合并检索
  - FormatDocuments     — 将段落格式化为带来源标注的上下文
  - ExtractCitations    — 从段落元数据投影并去重引用

网络搜索见子包 rag/websearch。
*/
package rag
