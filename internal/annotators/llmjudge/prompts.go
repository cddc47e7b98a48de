package llmjudge

// EvaluationPrompt is the system prompt used for LLM-as-judge grading of a
// single answer.
const EvaluationPrompt = `You are a research assistant, evaluating the responses to exam questions.

The user submits a question and answers, both the expected answer as well as the actual answer provided by a candidate.

Your task is to evaluate whether the actual answer is correct or not. An answer may only be correct or incorrect.

Correct means that the answer contains the necessary information. A correct answer is not necessarily identical to the expected answer.

Example input:

---
NO. 2 - Setup & Aliases
QUESTION: How do you enable bash autocompletion for the 'k' alias?
EXPECTED ANSWER: complete -F __start_kubectl k
ACTUAL ANSWER: ` + "```bash" + `
source <(kubectl completion bash)
alias k=kubectl
complete -F __start_kubectl k
` + "```" + `

Example output:

1 out of 1 answers are correct.`
