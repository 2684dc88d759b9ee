package ollama

import "unicode/utf8"

func buildExpansionPrompt(query string) string {
	const maxQuery = 1000
	if len(query) > maxQuery {
		// Back up to a rune boundary so the cut never leaves a broken
		// UTF-8 sequence in the prompt.
		cut := maxQuery
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}

	return `You expand elevator maintenance search queries.
Rewrite the query below as a single line of search keywords: keep the
original terms and add technical synonyms, part names and fault codes a
maintenance manual would use. Plain text, one line, no explanations.

Query:
` + query
}
