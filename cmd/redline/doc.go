// Command redline reviews .docx documents with an LLM and writes a copy with
// anchored margin comments. Document text is never modified.
//
// Usage:
//
//	redline review report.docx
//	redline review report.docx --model gpt-4o --context "quarterly report"
//	redline cache clear
//	redline config set model ollama/gemma3:12b
package main
