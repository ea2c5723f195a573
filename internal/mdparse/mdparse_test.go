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
)

func tokenize(t *testing.T, input string) []Token {
	t.Helper()
	var toks []Token
	p := New(func(tok Token) bool {
		toks = append(toks, Token{Type: tok.Type, Text: append([]byte(nil), tok.Text...), Data: tok.Data})
		return true
	})
	p.Parse([]byte(input))
	return toks
}

func TestHeaderAndBold(t *testing.T) {
	toks := tokenize(t, "# Title\n**bold** text")
	require.Equal(t, HeaderStart, toks[0].Type)
	require.EqualValues(t, 1, toks[0].Data)
	require.Equal(t, Text, toks[1].Type)
	require.Equal(t, "Title", string(toks[1].Text))
	require.Equal(t, HeaderEnd, toks[2].Type)
	require.Equal(t, Newline, toks[3].Type)
	require.Equal(t, BoldStart, toks[4].Type)
	require.Equal(t, Text, toks[5].Type)
	require.Equal(t, "bold", string(toks[5].Text))
	require.Equal(t, BoldEnd, toks[6].Type)
}

func TestLinkAndImage(t *testing.T) {
	toks := tokenize(t, "[click](http://x) ![alt](http://y.png)")
	require.Equal(t, LinkTextStart, toks[0].Type)
	require.Equal(t, "click", string(toks[1].Text))
	require.Equal(t, LinkTextEnd, toks[2].Type)
	require.Equal(t, LinkURL, toks[3].Type)
	require.Equal(t, "http://x", string(toks[3].Text))

	var sawImageURL bool
	for _, tok := range toks {
		if tok.Type == ImageURL {
			require.Equal(t, "http://y.png", string(tok.Text))
			sawImageURL = true
		}
	}
	require.True(t, sawImageURL)
}

func TestCodeBlockWithLanguage(t *testing.T) {
	toks := tokenize(t, "```go\nfmt.Println(1)\n```\n")
	require.Equal(t, CodeBlockStart, toks[0].Type)
	require.Equal(t, "go", string(toks[0].Text))
	var sawBody bool
	for _, tok := range toks {
		if tok.Type == Text && string(tok.Text) == "fmt.Println(1)" {
			sawBody = true
		}
	}
	require.True(t, sawBody)
	require.Equal(t, CodeBlockEnd, toks[len(toks)-1].Type)
}

func TestUnorderedAndOrderedList(t *testing.T) {
	toks := tokenize(t, "- first\n2. second\n")
	require.Equal(t, ListItemStart, toks[0].Type)
	require.EqualValues(t, 0, toks[0].Data)

	var ordered *Token
	for i := range toks {
		if toks[i].Type == ListItemStart && toks[i].Data != 0 {
			ordered = &toks[i]
		}
	}
	require.NotNil(t, ordered)
	require.EqualValues(t, 2, ordered.Data)
}

// TestOrderedListNumberFreezeQuirk locks in the firmware's accumulator
// quirk: once the running total exceeds 25 it stops updating, so a long
// digit run reports a frozen ordinal rather than the literal number or a
// saturated 255. This is an intentional compatibility decision, not a bug
// fix opportunity — see DESIGN.md.
func TestOrderedListNumberFreezeQuirk(t *testing.T) {
	toks := tokenize(t, "999. ninth-hundred-ninety-ninth\n")
	require.Equal(t, ListItemStart, toks[0].Type)
	// 0 -> 9 (0 <= 25, updates); 9 -> 99 (9 <= 25, updates); third digit ignored (99 > 25, frozen).
	require.EqualValues(t, 99, toks[0].Data)
}

func TestBlockquoteSpansBlankLineBreak(t *testing.T) {
	toks := tokenize(t, "> first\n> second\n\nafter")
	var starts, ends int
	for _, tok := range toks {
		switch tok.Type {
		case BlockquoteStart:
			starts++
		case BlockquoteEnd:
			ends++
		}
	}
	require.Equal(t, 1, starts)
	require.Equal(t, 1, ends)
}

func TestHorizontalRule(t *testing.T) {
	toks := tokenize(t, "text\n---\nmore")
	var sawHR bool
	for _, tok := range toks {
		if tok.Type == HR {
			sawHR = true
		}
	}
	require.True(t, sawHR)
}

func TestFeatureGatingDisablesConstruct(t *testing.T) {
	var toks []Token
	p := NewWithConfig(Config{
		Callback: func(tok Token) bool { toks = append(toks, tok); return true },
		Features: FeatBasic, // no strike, no links, no images, no lists, no hr, no blockquote
	})
	p.Parse([]byte("~~gone~~ [text](url)"))
	for _, tok := range toks {
		require.NotEqual(t, StrikeStart, tok.Type)
		require.NotEqual(t, LinkTextStart, tok.Type)
	}
}

func TestEscapedCharacterEmittedLiterally(t *testing.T) {
	toks := tokenize(t, `\*not italic\*`)
	require.Equal(t, Text, toks[0].Type)
	require.Equal(t, "*", string(toks[0].Text))
}

func TestResetClearsStateKeepsConfig(t *testing.T) {
	p := New(func(Token) bool { return true })
	p.ParseChunk([]byte("**unterminated bold"))
	require.True(t, p.inBold)
	p.Reset()
	require.False(t, p.inBold)
	require.NotNil(t, p.cfg.Callback)
}

func TestChunkedParseMatchesSinglePass(t *testing.T) {
	input := "# Title\n\nSome **bold** and *italic* words."
	whole := tokenize(t, input)

	var chunked []Token
	p := New(func(tok Token) bool {
		chunked = append(chunked, Token{Type: tok.Type, Text: append([]byte(nil), tok.Text...), Data: tok.Data})
		return true
	})
	mid := len(input) / 2
	p.ParseChunk([]byte(input[:mid]))
	p.ParseChunk([]byte(input[mid:]))
	p.ParseEnd()

	require.Equal(t, len(whole), len(chunked))
}
