package httpserver

import "testing"

func FuzzParseNumbersQuery(f *testing.F) {
	seeds := []string{
		"1,4,7",
		" 25 ",
		"1,,2",
		"-1",
		"abc",
		"",
		"99999999999999999999",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		numbers, err := parseNumbersQuery(raw)
		if err != nil {
			return
		}
		for _, n := range numbers {
			if n <= 0 {
				t.Fatalf("parseNumbersQuery(%q) accepted non-positive %d", raw, n)
			}
		}
	})
}
