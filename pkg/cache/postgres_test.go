package cache

import "testing"

func TestSplitKey(t *testing.T) {
	cases := []struct {
		key    string
		wantNS string
		wantK  string
	}{
		{"hgnc:HGNC:12345", "hgnc", "HGNC:12345"},
		{"panelapp:BRCA1", "panelapp", "BRCA1"},
		{"no-namespace-here", "other", "no-namespace-here"},
	}
	for _, c := range cases {
		ns, k := splitKey(c.key)
		if ns != c.wantNS || k != c.wantK {
			t.Errorf("splitKey(%q) = (%q, %q), want (%q, %q)", c.key, ns, k, c.wantNS, c.wantK)
		}
	}
}

func TestPatternToSQL(t *testing.T) {
	cases := []struct {
		pattern  string
		wantNS   string
		wantLike string
	}{
		{"hgnc:*", "hgnc", "%"},
		{"hgnc:HGNC*", "hgnc", "HGNC%"},
		{"*", "", "%"},
		{"plainkey", "", "plainkey"},
	}
	for _, c := range cases {
		ns, like := patternToSQL(c.pattern)
		if ns != c.wantNS || like != c.wantLike {
			t.Errorf("patternToSQL(%q) = (%q, %q), want (%q, %q)", c.pattern, ns, like, c.wantNS, c.wantLike)
		}
	}
}

func TestPostgresCache_CloseIsNoop(t *testing.T) {
	c := NewPostgresCache(nil)
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
