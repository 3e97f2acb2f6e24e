// Package docx reads and writes Word (.docx) containers for review.
//
// A document is opened from a zip container, its word/document.xml scanned
// once to index every paragraph (body and table cells alike) with the exact
// byte ranges of its runs and text segments. Extraction yields ordered Units
// whose concatenated text is the document's reviewable text. Comment anchors
// are validated eagerly and materialized at save time as byte insertions into
// the original XML, so the reviewable text itself is never altered.
package docx
