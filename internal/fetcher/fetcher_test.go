package fetcher

import "testing"

func TestSanitizeStripsShellUnsafeChars(t *testing.T) {
	cases := map[string]string{
		"mountains | rm -rf":  "mountains rm -rf",
		"cats & dogs":         "cats dogs",
		`say "hello"`:         "say hello",
		"foo;bar":             "foobar",
		"<script>":            "script",
		"price $5":            "price 5",
		"back`tick`":          "backtick",
		"#trending":           "trending",
		"  extra   spaces  ":  "extra spaces",
		"clean term":          "clean term",
	}

	for input, want := range cases {
		got := Sanitize(input)
		if got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizeEmptyString(t *testing.T) {
	if got := Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}
