package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/assistbots/internal/text"
)

func TestCleanReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text unchanged", input: "Hello there", want: "Hello there"},
		{name: "citations removed", input: "The answer is 42【4:0†source】.", want: "The answer is 42."},
		{name: "crlf normalized", input: "one\r\ntwo\rthree", want: "one\ntwo\nthree"},
		{name: "invisible characters dropped", input: "zero\u200Bwidth\uFEFF and\u00A0nbsp", want: "zero width and nbsp"},
		{name: "control characters replaced", input: "bell\x07here", want: "bell here"},
		{name: "inner spaces collapsed", input: "too    many\t\tspaces   ", want: "too many spaces"},
		{name: "indentation kept", input: "code:\n    x := 1\n    return x", want: "code:\n    x := 1\n    return x"},
		{name: "blank lines collapsed", input: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "whitespace only", input: " \n\t\u200B\n ", want: ""},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, text.CleanReply(tt.input))
		})
	}
}
