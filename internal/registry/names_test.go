package registry

import "testing"

func TestValidateNameAcceptsRegistryNames(t *testing.T) {
	for _, name := range []string{"react", "left-pad", "@babel/core", "lodash.merge", "A-Legacy_Name", "@types/node", "jquery~1"} {
		if errs := ValidateName(name); len(errs) != 0 {
			t.Fatalf("%s 应合法, got %v", name, errs)
		}
	}
}

func TestValidateNameRejects(t *testing.T) {
	cases := []string{"", ".hidden", "_private", " react", "node_modules", "favicon.ico", "a b", "@scope/a/b", "ä"}
	for _, name := range cases {
		if errs := ValidateName(name); len(errs) == 0 {
			t.Fatalf("%q 应非法", name)
		}
	}
}

func TestIsHash(t *testing.T) {
	if !IsHash("0123456789abcdef0123456789ABCDEF") {
		t.Fatalf("32 位十六进制应视为 hash")
	}
	if IsHash("0123456789abcdef") || IsHash("0123456789abcdef0123456789abcdeg") {
		t.Fatalf("长度不足或含非十六进制字符不应视为 hash")
	}
}

func TestEncodeName(t *testing.T) {
	if got := EncodeName("@babel/core"); got != "@babel%2Fcore" {
		t.Fatalf("scoped 包编码错误: %s", got)
	}
	if got := EncodeName("react"); got != "react" {
		t.Fatalf("普通包不应改变: %s", got)
	}
	if got := TarballBasename("@babel/core"); got != "core" {
		t.Fatalf("scoped tarball 名称错误: %s", got)
	}
}
