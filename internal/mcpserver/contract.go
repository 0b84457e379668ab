package mcpserver

// DefinitionFormatContract describes the datamap definition format that LLM
// consumers should follow when drafting a definition for import.
const DefinitionFormatContract = `# Datamap Definition Format

A datamap definition is plain comma-separated text. It binds a key to one
cell of one sheet in a workbook.

## Structure

` + "```" + `text
key,sheet,cellref
project_name,Summary,B2
budget_total,Finance,C7
owner,Summary,B3
` + "```" + `

## Rules

1. **The first non-empty line is the header.** Its field count fixes the
   count every data line must have. Use exactly three fields.
2. **Fields are separated by a single comma.** There is no quoting or
   escaping, so keys, sheet names and cell values may not contain commas.
3. **key** is any non-empty text. Keys should be unique within a datamap.
4. **sheet** must match the workbook's sheet name exactly, including case.
5. **cellref** is an A1-style reference such as ` + "`" + `B2` + "`" + ` or ` + "`" + `AA10` + "`" + `:
   one to three letters followed by digits, at most 10 characters. It is
   upper-cased on import.
6. **No two lines may name the same sheet and cell.** Such a definition is
   rejected as a whole.
7. Blank lines are ignored. Lines with the wrong number of fields or an
   invalid cellref are skipped and reported; the rest are imported.
8. **Encoding** is UTF-8; a leading byte order mark is ignored.

## Results

Each extraction of a workbook records one run. Values are the cell text as
displayed in the workbook, in the order the cells were read: sheets in the
order they first appear in the definition, cells row by row.
`
