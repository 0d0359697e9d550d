package llm

import "fmt"

// Prompt templates for the three call paths: multi-turn synthesis,
// single-shot document analysis, and sub-query decomposition. The
// synthesis and analysis templates instruct the model to emit an optional
// <thinking> block and to cite context entries as bracketed numbers; the
// parser in thinking.go understands that convention.

const synthesisTemplate = `You are an expert AI tutor specializing in engineering and scientific education. Provide deep, accurate, and comprehensive explanations while maintaining a supportive learning environment.

**CORE INSTRUCTIONS:**
1. **THINKING PROCESS:** Begin your response with a <thinking> block where you analyze the query, identify the key concepts, and plan your answer.
2. **RESPONSE QUALITY:** Give detailed, technical explanations with clear structure (headings, bullet points, numbered lists). Define terms thoroughly and use examples to clarify complex ideas.
3. **CONTEXT INTEGRATION:** When using the provided context, cite sources as [1], [2], etc. Synthesize across sources and acknowledge gaps in the information.

**RESPONSE STRUCTURE:**
<thinking>
[Your analysis and plan here]
</thinking>

[Your comprehensive answer here]

---
**USER QUERY:**
"%s"

**PROVIDED CONTEXT:**
--- START CONTEXT ---
%s
--- END CONTEXT ---

**YOUR RESPONSE (start with <thinking>):**
`

// renderSynthesisPrompt embeds the query and retrieved context into the
// synthesis template.
func renderSynthesisPrompt(query, context string) string {
	return fmt.Sprintf(synthesisTemplate, query, context)
}

const subQueryTemplate = `You are an AI assistant skilled at decomposing user questions into focused search queries.

Decompose the question below into at most %d standalone sub-queries that can each be searched independently against a document index. Output ONLY the sub-queries, one per line, with no numbering, bullets, or commentary.

Question: %s
`

func renderSubQueryPrompt(query string, count int) string {
	return fmt.Sprintf(subQueryTemplate, count, query)
}

const analysisThinkingPrefix = `**STEP 1: THINKING PROCESS (Recommended):**
*   Briefly outline your plan in <thinking> tags.
*   Place the final analysis *after* the </thinking> tag.

**STEP 2: ANALYSIS OUTPUT:**
*   Generate the requested analysis based **strictly** on the text provided below.

--- START DOCUMENT TEXT ---
%s
--- END DOCUMENT TEXT ---
`

const faqTemplate = `You are an expert educational content analyzer specializing in creating comprehensive FAQs from technical documents.

**CRITICAL RULES:**
1.  **FORMAT:** Your output MUST strictly follow the "Q: [Question]" / "A: [Answer]" format for each item.
2.  **NO PREAMBLE:** Your entire response MUST begin directly with "Q:". Do not output any other text.
3.  **DATA SOURCE:** Base all questions and answers ONLY on the provided document text.
4.  **QUANTITY:** Generate approximately %d questions.
5.  **QUALITY:** Focus on key concepts, definitions, processes, and important details.

--- START DOCUMENT TEXT ---
%s
--- END DOCUMENT TEXT ---
EXECUTE NOW.
`

const topicsTemplateSuffix = `
**TASK:** Identify approximately %d of the most important topics from the document.
**OUTPUT FORMAT (Strict):**
*   Start directly with the first topic. Do NOT include preamble.
*   Format as a Markdown bulleted list: "*   **Topic Name:** Brief explanation (1-2 sentences)."
**BEGIN OUTPUT:**
`

const mindmapTemplate = `You are an expert text-to-Mermaid-syntax converter specializing in hierarchical mind maps.

**CRITICAL SYNTAX RULES:**
1.  **MANDATORY START:** The entire response MUST begin with the word "mindmap" on the very first line.
2.  **HIERARCHY VIA INDENTATION:** Structure is defined ONLY by indentation, two spaces per level.
3.  **SINGLE ROOT:** Exactly one top-level node after the "mindmap" keyword.
4.  **NO CONVERSATION:** No explanations, apologies, or markdown fences. Pure Mermaid syntax only.
5.  **QUANTITY:** Generate approximately %d nodes.

--- START DOCUMENT TEXT ---
%s
--- END DOCUMENT TEXT ---

EXECUTE NOW. CREATE THE MERMAID MIND MAP.
`

// renderAnalysisPrompt builds the prompt for the given analysis type.
// ok is false for unknown types.
func renderAnalysisPrompt(typ string, docText string, numItems int) (string, bool) {
	switch typ {
	case "faq":
		return fmt.Sprintf(faqTemplate, numItems, docText), true
	case "topics":
		return fmt.Sprintf(analysisThinkingPrefix, docText) + fmt.Sprintf(topicsTemplateSuffix, numItems), true
	case "mindmap":
		return fmt.Sprintf(mindmapTemplate, numItems, docText), true
	default:
		return "", false
	}
}
