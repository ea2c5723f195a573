/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mdparse

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// countGoldmarkBlocks walks goldmark's AST and counts the block kinds this
// package's tokenizer also distinguishes, as an independent oracle: the two
// parsers share no code, so agreement on gross block structure is a useful
// cross-check that the streaming tokenizer isn't silently dropping or
// inventing block boundaries. Inline emphasis nesting and exact link/image
// counts are intentionally not compared — goldmark's CommonMark-compliant
// inline parser and this package's single-pass one diverge on edge cases
// (nested emphasis, reference-style links) that the device never needs to
// render identically to a desktop renderer.
func countGoldmarkBlocks(src []byte) (headers, paragraphs, listItems, blockquotes, codeBlocks int) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			headers++
		case ast.KindParagraph:
			paragraphs++
		case ast.KindListItem:
			listItems++
		case ast.KindBlockquote:
			blockquotes++
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			codeBlocks++
		}
		return ast.WalkContinue, nil
	})
	return
}

func countTokenizerBlocks(src []byte) (headers, listItems, blockquotes, codeBlocks int) {
	p := New(func(tok Token) bool {
		switch tok.Type {
		case HeaderStart:
			headers++
		case ListItemStart:
			listItems++
		case BlockquoteStart:
			blockquotes++
		case CodeBlockStart:
			codeBlocks++
		}
		return true
	})
	p.Parse(src)
	return
}

func TestAgreesWithGoldmarkOnBlockStructure(t *testing.T) {
	docs := []string{
		"# Title\n\nA paragraph of text.\n",
		"## Subheading\n\n- one\n- two\n- three\n",
		"> quoted line\n> continues\n\nafter\n",
		"```go\nfmt.Println(1)\n```\n",
		"# H1\n## H2\n### H3\n",
	}
	for _, doc := range docs {
		gmHeaders, _, gmListItems, gmQuotes, gmCode := countGoldmarkBlocks([]byte(doc))
		tkHeaders, tkListItems, tkQuotes, tkCode := countTokenizerBlocks([]byte(doc))

		require.Equal(t, gmHeaders, tkHeaders, "header count mismatch for %q", doc)
		require.Equal(t, gmListItems, tkListItems, "list item count mismatch for %q", doc)
		require.Equal(t, gmQuotes, tkQuotes, "blockquote count mismatch for %q", doc)
		require.Equal(t, gmCode, tkCode, "code block count mismatch for %q", doc)
	}
}
