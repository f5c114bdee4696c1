package rag

// System prompt used to rewrite a follow-up question into a standalone
// one before retrieval, so the similarity search is not polluted by
// pronouns that only make sense inside the chat history.
const contextualizePrompt = `Given a chat history and the latest user question ` +
	`which might reference context in the chat history, formulate a standalone question ` +
	`which can be understood without the chat history. Do NOT answer the question, ` +
	`just reformulate it if needed and otherwise return it as is.`

// System prompt for the grounded question-answering step. The retrieved
// passages are appended below it.
const qaPrompt = `You are an assistant for question-answering tasks. ` +
	`Use the following pieces of retrieved context to answer the question. ` +
	`If you don't know the answer, just say that you don't know. ` +
	`Use three sentences maximum and keep the answer concise. ` +
	`Be professional and do not include emojis or slang in your answer.`
