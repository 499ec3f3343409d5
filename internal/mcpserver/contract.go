package mcpserver

// PageFormatContract describes how page text is interpreted by the wiki
// indexer. LLM consumers should follow it when creating or updating pages.
const PageFormatContract = `# Wiki Page Format Contract

A page is addressed by its wiki word (for example ` + "`" + `ProjectAlpha` + "`" + ` or
` + "`" + `Meeting Notes` + "`" + `). The text is stored as UTF-8; line endings are normalised to LF.

## Structure

` + "```" + `text
---
aliases:                            # OPTIONAL – other names that link here
  - Alpha
tags: [project, active]             # OPTIONAL – stored as "tag" properties
status: draft                       # OPTIONAL – any scalar or list becomes a property
global.theme: dark                  # OPTIONAL – keys starting with "global." describe the whole wiki
---
# Project Alpha                     # first heading becomes a search term

Body text. Link with [[OtherPage]] or [[OtherPage|shown text]].
Inline tags like #idea are stored as "tag" properties too.

todo: write the proposal
done.review: collect feedback
` + "```" + `

## Rules

1. **Front matter is optional.** When present the ` + "`" + `---` + "`" + ` fences must open the
   page. Invalid YAML is ignored and the whole text is treated as body.
2. **Links** use double brackets. The text before ` + "`" + `|` + "`" + ` is the link target; it
   resolves through aliases first, then through page names.
3. **Aliases** (` + "`" + `alias` + "`" + ` or ` + "`" + `aliases` + "`" + `) make a page reachable under other names.
   An alias equal to the page's own word is ignored.
4. **Todos** are lines starting with ` + "`" + `todo:` + "`" + ` or ` + "`" + `done:` + "`" + `, optionally with
   dotted sub-keys (` + "`" + `todo.work:` + "`" + `).
5. **Property keys** are case-sensitive; ` + "`" + `tags` + "`" + ` is stored as ` + "`" + `tag` + "`" + ` and
   ` + "`" + `aliases` + "`" + ` as ` + "`" + `alias` + "`" + `.
6. **Renames** move every property, todo, link and alias owned by the page. Links
   pointing at the old name from other pages are not rewritten.

## Data blocks

- Store binary assets with the ` + "`" + `upload_block` + "`" + ` tool. It returns the block name
  and a Markdown snippet referencing ` + "`" + `/api/blocks/<name>` + "`" + `.
- Blocks placed ` + "`" + `extern` + "`" + ` live as files next to the pages; ` + "`" + `intern` + "`" + ` blocks
  live inside the cache. An existing block keeps its placement.
`
