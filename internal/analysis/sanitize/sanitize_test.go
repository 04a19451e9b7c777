package sanitize

import "testing"

func TestCleanFixedDepositScenario(t *testing.T) {
	got := Clean("What is a fixed deposit? [source: 151.pdf p4] **Important**")
	want := "What is a fixed deposit? Important"
	if got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanRemovesArtifacts(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "numeric citations",
			input: "FD rates are fixed [1]. Savings rates float [2, 3].",
			want:  "FD rates are fixed. Savings rates float.",
		},
		{
			name:  "file reference with page",
			input: "See loan_policy.pdf page 12 for the full rules.",
			want:  "See for the full rules.",
		},
		{
			name:  "page parenthetical",
			input: "The lock-in is five years (p. 4).",
			want:  "The lock-in is five years.",
		},
		{
			name:  "fenced code dropped inline unwrapped",
			input: "Use `EMI` to compare.\n```python\nprint(1)\n```\nDone.",
			want:  "Use EMI to compare.\nDone.",
		},
		{
			name:  "link keeps label",
			input: "Visit the [RBI website](https://rbi.org.in) today.",
			want:  "Visit the RBI website today.",
		},
		{
			name:  "tags and bullets",
			input: "<b>Tips</b>\n• Start early\n- Stay invested ✅",
			want:  "Tips\nStart early\nStay invested",
		},
		{
			name:  "headings and arrows",
			input: "## Summary\nSIP → disciplined investing",
			want:  "Summary\nSIP disciplined investing",
		},
		{
			name:  "sentence spacing",
			input: "Rates rose.Banks followed .  Savers   gained!",
			want:  "Rates rose. Banks followed. Savers gained!",
		},
		{
			name:  "devanagari danda spacing",
			input: "यह सुरक्षित है।बैंक गारंटी देता है।",
			want:  "यह सुरक्षित है। बैंक गारंटी देता है।",
		},
		{
			name:  "decimal untouched",
			input: "The rate is 7.5% this year.",
			want:  "The rate is 7.5% this year.",
		},
		{
			name:  "empty",
			input: "   ",
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.input); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"What is a fixed deposit? [source: 151.pdf p4] **Important**",
		"**[1]** nested *emphasis* with `code` and [link](http://x) (page 3)",
		"[[source: a.pdf]] ** ** __x__ ~~y~~",
		"Wait... really?!Yes.",
		"<div class=\"x\"><p>**bold** <i>it</i></p></div>",
		"```\nunterminated fence",
		"1. First\n2. Second\n---\n| a | b |",
		"【3】 拆分 ［note］ 😀 ★ done",
		"a*b*c_d_e `f` [g] (h)",
	}

	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}
