package llm

import "testing"

func TestStripThinking(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  plain answer \n", "plain answer"},
		{"<think>reasoning</think>Answer", "Answer"},
		{"<THINK>\nmulti\nline\n</Think>\n\nОтвет", "Ответ"},
		{"a <think>x</think> b <think>y</think> c", "a  b  c"},
		{"<think>unterminated", "<think>unterminated"},
	}
	for _, c := range cases {
		if got := StripThinking(c.in); got != c.want {
			t.Errorf("StripThinking(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
