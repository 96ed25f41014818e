// Package content implements the language-model backed collaborators of the
// pipeline: content analysis, segmentation, copyright screening and
// sensitive-content detection.
//
// Every call goes through the provider router with the task's preferred
// backend and temperature. Prompts live in an embedded YAML catalog
// (prompts.yaml) rendered with text/template. Replies are requested as JSON
// and decoded leniently: numbers may arrive as strings, lists as
// comma-separated text, and the copyright check also understands the plain
// VALID/INVALID reply format.
package content
