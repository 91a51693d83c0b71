package classify

import "regexp"

// builtinRules is evaluated top to bottom. The first three entries come
// first so more generic patterns below never shadow them.
var builtinRules = []Rule{
	{
		Pattern:    regexp.MustCompile(`Missing number, treated as zero`),
		Cause:      `Missing \real{} command for table column calculations`,
		Solution:   `Add \newcommand*{\real}[1]{#1} to template`,
		Confidence: 0.95,
	},
	{
		Pattern:    regexp.MustCompile(`Paragraph ended before \\lstset@ was complete`),
		Cause:      "Unclosed lstset block in template",
		Solution:   "Add closing } to lstset configuration",
		Confidence: 0.9,
	},
	{
		Pattern:    regexp.MustCompile(`Undefined control sequence.*tightlist`),
		Cause:      `Missing \tightlist command definition`,
		Solution:   `Add \providecommand{\tightlist}{...} to template`,
		Confidence: 0.85,
	},
	{
		Pattern:    regexp.MustCompile("File `[^']+\\.sty' not found"),
		Cause:      "LaTeX package or style file not found",
		Solution:   "Place the .sty file in the template store or install the package",
		Confidence: 0.9,
	},
	{
		Pattern:    regexp.MustCompile(`(?i)font "[^"]+" (cannot|could not) be found`),
		Cause:      "Font configured in metadata is not installed",
		Solution:   "Install the font or override mainfont/monofont in the request metadata",
		Confidence: 0.7,
	},
	{
		Pattern:    regexp.MustCompile(`Undefined control sequence`),
		Cause:      "Template uses a command that is not defined",
		Solution:   "Define the command in the template preamble or load the package providing it",
		Confidence: 0.6,
	},
	{
		Pattern:    regexp.MustCompile(`Unknown option|unrecognized option`),
		Cause:      "Renderer rejected a command-line option",
		Solution:   "Check pandoc_args and lua_filters of the test case",
		Confidence: 0.5,
	},
	{
		Pattern:    regexp.MustCompile(`renderer timed out after`),
		Cause:      "Renderer exceeded its time limit",
		Solution:   "Reduce the input size or look for an infinite loop in the template",
		Confidence: 0.4,
	},
}
