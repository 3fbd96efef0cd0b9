package pipeline

// Compiled-in fallback templates, used when neither the target language nor
// the default language has an edited template on file. Anchors: {l1_language}
// {l2_language} {examples} {input}.
var builtinTemplates = map[string]string{
	"plain.generate": `Write a story in {l2_language} suitable for language learners, based on the following instructions.

Instructions:
{input}

Return only the story text, with one paragraph per page separated by blank lines.`,

	"plain.improve": `Here is a story in {l2_language}. Improve it according to the instructions, keeping roughly the same length.

Story:
{input}

Return only the improved story text.`,

	"title": `Here is a story in {l2_language}. Suggest a short title in {l2_language}.

{input}

Return only the title.`,

	"summary": `Here is a story in {l2_language}. Write a one-paragraph summary in {l1_language}.

{input}

Return only the summary.`,

	"cefr_level": `Here is a text in {l2_language}. Estimate its CEFR reading difficulty.

{input}

Return only one of: A1, A2, B1, B2, C1, C2.`,

	"segmented": `Annotate the following {l2_language} text by marking sentence-like segments and word boundaries.
Insert "||" between segments. Mark multi-word expressions by surrounding them with "@" signs.
In languages without spaces, separate words with "|".

Examples:
{examples}

Text:
{input}

Return only the annotated text, keeping every original character.`,

	"gloss": `You are annotating a {l2_language} text with {l1_language} glosses for language learners.
You will receive a JSON list of the words of one segment, in order.
Reply with a JSON list of [word, gloss] pairs, one pair per input word, in the same order.

Examples:
{examples}

Words:
{input}`,

	"lemma": `You are annotating a {l2_language} text with lemmas and part-of-speech tags.
You will receive a JSON list of the words of one segment, in order.
Reply with a JSON list of [word, lemma, pos] triples, one per input word, in the same order.
Use Universal Dependencies POS tags.

Examples:
{examples}

Words:
{input}`,

	"pinyin": `You are annotating a {l2_language} text with pinyin.
You will receive a JSON list of the words of one segment, in order.
Reply with a JSON list of [word, pinyin] pairs, one pair per input word, in the same order.

Examples:
{examples}

Words:
{input}`,

	"phonetic": `You are annotating {l2_language} words with phonetic transcriptions (IPA).
You will receive a JSON list of the words of one segment, in order.
Reply with a JSON list of [word, transcription] pairs, one pair per input word, in the same order.

Examples:
{examples}

Words:
{input}`,

	"mwe": `You are identifying multi-word expressions in a {l2_language} segment.
You will receive a JSON list of the words of the segment, in order.
Reply with a JSON object {"analysis": "<brief reasoning>", "mwes": [["word", ...], ...]}
where each inner list gives the words of one multi-word expression in order of occurrence.
Only include genuinely non-compositional expressions. Use an empty list if there are none.

Examples:
{examples}

Words:
{input}`,

	"translated": `Translate the following {l2_language} segment into {l1_language}.

Segment:
{input}

Return only the translation.`,

	"correct": `The following {l2_language} text was hand-edited and no longer parses in the expected format.
Repair it with as few changes as possible so it parses, preserving the editor's intent.

Expected format: {examples}

Text:
{input}

Return only the repaired text.`,
}
