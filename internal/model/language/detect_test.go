package language

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{text: "What is a fixed deposit?", want: "en"},
		{text: "फिक्स्ड डिपॉजिट क्या है?", want: "hi"},
		{text: "SIP என்றால் என்ன?", want: "ta"},
		{text: "12345 ???", want: ""},
		{text: "", want: ""},
	}

	for _, tc := range cases {
		if got := Detect(tc.text); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestMemoryStoreFindNormalizesLocale(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := store.Find("hi-IN")
	if !ok || p.Code != "hi" {
		t.Fatalf("expected hindi profile for hi-IN, got %+v ok=%v", p, ok)
	}
	if _, ok := store.Find("xx"); ok {
		t.Fatal("expected unknown language to be missing")
	}
	if got := store.Resolve("xx").Code; got != DefaultCode {
		t.Fatalf("Resolve fallback = %q, want %q", got, DefaultCode)
	}
}
