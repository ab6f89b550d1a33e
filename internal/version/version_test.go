package version

import "testing"

func TestFullAndUserAgent(t *testing.T) {
	prevVersion, prevCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = prevVersion, prevCommit })

	Version, Commit = "1.2.3", "abc123"
	if got := Full(); got != "any-cdn 1.2.3 (abc123)" {
		t.Fatalf("版本信息错误: %s", got)
	}
	if got := UserAgent(); got != "any-cdn/1.2.3" {
		t.Fatalf("User-Agent 错误: %s", got)
	}
}
