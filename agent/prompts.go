package agent

import (
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/llm/structured"
	"github.com/BaSui01/ragflow/types"
)

// 补全任务名，用于日志、指标与测试脚本
const (
	TaskRouter              = "router"
	TaskDocumentGrader      = "document_grader"
	TaskHallucinationGrader = "hallucination_grader"
	TaskAnswerGrader        = "answer_grader"
	TaskRewriter            = "rewriter"
	TaskGenerator           = "generator"
	TaskDecomposer          = "decomposer"
	TaskSubAnswer           = "sub_answer"
	TaskSynthesis           = "synthesis"
	TaskMultiQuery          = "multi_query"
)

const (
	noPriorConversation = "(No prior conversation)"
	directContext       = "(No documents retrieved — this is a direct response.)"
)

// =============================================================================
// 📝 Prompt 模板
// =============================================================================

const routerSystem = `You route user questions to the retrieval strategy that will answer them best.
A vector store holds the documents the user uploaded (PDF, Markdown and CSV files).

Pick exactly ONE route:

1. vectorstore: a clear, specific question that a single focused search over the uploaded documents should answer.
2. multi_query: a vague or broad question that benefits from searching several angles, e.g. "What are the key points?" or "Summarize the document".
3. decompose: a complex question that compares entities or needs several reasoning steps, e.g. "How does A differ from B?".
4. web_search: a question about recent events or information clearly outside the uploaded documents.
5. direct: a greeting, small talk, or anything answerable without retrieval, e.g. "Hello" or "What can you do?".

Use the chat history for context when it helps. Give the route and one short sentence of reasoning.`

const documentGraderSystem = `You judge whether a retrieved document is relevant to a user question.
A document is relevant when it shares keywords or meaning with the question.
Answer with a binary score: "yes" or "no".`

const hallucinationGraderSystem = `You judge whether an answer is grounded in a set of retrieved facts.
Answer "yes" when every claim in the answer is supported by the facts, "no" when it states anything the facts do not support.
Wording differences are fine as long as the meaning is preserved.`

const answerGraderSystem = `You judge whether an answer addresses the user's question.
Answer "yes" when it does, "no" when it does not.`

const rewriterSystem = `You rewrite user questions into better queries for vector store retrieval.
Work out the intent behind the question, then rewrite it so that it is more specific, uses keywords likely to appear in the documents, and carries no ambiguity.

Output ONLY the rewritten query.`

const generatorSystem = `You answer questions using the retrieved context below.
If the context does not hold enough information, say so plainly and do not invent facts.

Citations:
- After each key claim, cite its source as [Source: filename, page/row N] using the document metadata.
- When several documents support a point, cite all of them.

Keep the answer concise, well structured and complete. Use lists where they help.

Chat history:
%s`

const decomposerSystem = `You break complex questions into 2-4 simpler sub-questions.
Each sub-question must be answerable on its own through document retrieval and specific enough for a vector search.
Order them logically; together they must cover everything the original question asks.`

const synthesisSystem = `You combine answers to sub-questions into one complete answer to the original question.

- Keep every citation from the sub-answers in the form [Source: filename, page/row N].
- Organize the information logically and drop repetition without losing details.
- If sub-answers contradict each other, point out the discrepancy.`

// =============================================================================
// 🔧 Prompt 构造
// =============================================================================

func routerPrompt(question, history string, temperature float64) structured.Prompt {
	return structured.Prompt{
		Name:        TaskRouter,
		System:      routerSystem,
		User:        fmt.Sprintf("Chat history:\n%s\n\nQuestion: %s", history, question),
		Temperature: temperature,
	}
}

func documentGraderPrompt(document, question string) structured.Prompt {
	return structured.Prompt{
		Name:   TaskDocumentGrader,
		System: documentGraderSystem,
		User:   fmt.Sprintf("Retrieved document:\n\n%s\n\nUser question: %s", document, question),
	}
}

func hallucinationGraderPrompt(documents, generation string) structured.Prompt {
	return structured.Prompt{
		Name:   TaskHallucinationGrader,
		System: hallucinationGraderSystem,
		User:   fmt.Sprintf("Retrieved facts:\n\n%s\n\nAnswer:\n\n%s", documents, generation),
	}
}

func answerGraderPrompt(question, generation string) structured.Prompt {
	return structured.Prompt{
		Name:   TaskAnswerGrader,
		System: answerGraderSystem,
		User:   fmt.Sprintf("User question: %s\n\nAnswer: %s", question, generation),
	}
}

func rewriterPrompt(question string) structured.Prompt {
	return structured.Prompt{
		Name:   TaskRewriter,
		System: rewriterSystem,
		User:   "Original question: " + question,
	}
}

func generatorPrompt(task, context, question, history string, temperature float64) structured.Prompt {
	return structured.Prompt{
		Name:        task,
		System:      fmt.Sprintf(generatorSystem, history),
		User:        fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, question),
		Temperature: temperature,
	}
}

func decomposerPrompt(question string) structured.Prompt {
	return structured.Prompt{
		Name:   TaskDecomposer,
		System: decomposerSystem,
		User:   "Complex question: " + question,
	}
}

func synthesisPrompt(question string, answers []types.SubAnswer, temperature float64) structured.Prompt {
	return structured.Prompt{
		Name:   TaskSynthesis,
		System: synthesisSystem,
		User: fmt.Sprintf("Original question: %s\n\nSub-questions and their answers:\n%s\n\nWrite one complete answer to the original question.",
			question, FormatSubAnswers(answers)),
		Temperature: temperature,
	}
}

// FormatSubAnswers 把子问答格式化为带标签的块
func FormatSubAnswers(answers []types.SubAnswer) string {
	blocks := make([]string, len(answers))
	for i, sa := range answers {
		blocks[i] = fmt.Sprintf("**Sub-question %d**: %s\n**Answer**: %s", i+1, sa.Question, sa.Answer)
	}
	return strings.Join(blocks, "\n\n")
}

// FormatChatHistory 格式化最近 window 条消息；window <= 0 时使用全部
func FormatChatHistory(history []types.ChatMessage, window int) string {
	if len(history) == 0 {
		return noPriorConversation
	}
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n")
}
