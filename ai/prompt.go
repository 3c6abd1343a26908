package ai

import "fmt"

// SystemInstruction frames every request
const SystemInstruction = "You are an expert academic poster designer. You read research manuscripts " +
	"and return concise, well structured poster content as a single JSON object."

// BuildPrompt wraps manuscript text in the extraction instruction
func BuildPrompt(manuscript string) string {
	return fmt.Sprintf(`You are helping create an academic poster from a research paper.
Read the manuscript below and return ONLY a JSON object with exactly these keys:

{
  "headline": "A short, catchy headline (max 10 words). Wrap the 1-3 most important words in *asterisks* to highlight them.",
  "title": "The full title of the paper",
  "authors": "Author names, comma separated, with affiliation numbers if present",
  "affiliations": "Numbered author affiliations",
  "subtitle": "One sentence summarising the main finding",
  "Introduction": "3-4 sentences of background and motivation",
  "Objective": "1-2 sentences stating the research question or aim",
  "Methods": "3-5 short bullet points describing study design and methods, one per line starting with '• '",
  "Results": "3-5 short bullet points with the key quantitative findings, one per line starting with '• '",
  "Discussion": "2-3 sentences interpreting the results",
  "Conclusions": "2-3 sentences with the take-home message",
  "References": "Up to 5 key references in short citation format, one per line"
}

Rules:
- Use plain text inside every value. No markdown headings, no nested objects.
- If the manuscript does not contain information for a key, return an empty string for it.
- Do not wrap the JSON in code fences and do not add any commentary.

MANUSCRIPT:
%s`, manuscript)
}
