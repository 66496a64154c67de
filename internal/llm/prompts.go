package llm

import "fmt"

// translateSystem instructs the model to produce the fixed translation shape.
const translateSystem = `You are a bilingual dictionary. Given a word, respond with a JSON object:
{"translations": ["..."], "examples": [{"src": "...", "tgt": "..."}], "forms": {"...": "..."}}
"translations" lists the most common translations first and must not be empty.
"examples" gives up to 3 short sentence pairs (src in the source language, tgt in the target language).
"forms" maps grammatical tags (e.g. "plural", "past") to word forms; use {} when not applicable.
No prose outside the JSON object.`

func translateUser(text, srcLang, tgtLang string) string {
	return fmt.Sprintf("Translate the %s word %q into %s.", srcLang, text, tgtLang)
}

// validateSystem instructs the model to grade an answer and explain briefly.
const validateSystem = `You grade vocabulary quiz answers. Decide whether the learner's answer is an acceptable translation: accept synonyms, minor spelling slips and grammatical variants; reject different meanings. Respond with a JSON object:
{"correct": true|false, "comment": "..."}
"comment" is one short sentence of feedback addressed to the learner, written in the language named in the prompt. No prose outside the JSON object.`

func validateUser(question, expected, answer, srcLang, tgtLang, commentLang string) string {
	return fmt.Sprintf(
		"Question (%s → %s): %q\nExpected answer: %q\nLearner's answer: %q\nWrite the comment in %s.",
		srcLang, tgtLang, question, expected, answer, commentLang)
}
