// Package versions 把请求中的版本号、dist-tag 或 semver 范围解析为具体版本。
package versions

import (
	"errors"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ErrNoMatch 表示没有任何版本满足请求。
var ErrNoMatch = errors.New("no matching version")

// Resolve 依次尝试 dist-tag 替换、精确匹配与 semver 范围匹配，返回满足条件的最高版本。
func Resolve(versions []string, tags map[string]string, requested string) (string, error) {
	if tagged, ok := tags[requested]; ok {
		requested = tagged
	}

	for _, candidate := range versions {
		if candidate == requested {
			return candidate, nil
		}
	}

	constraint, err := semver.NewConstraint(requested)
	if err != nil {
		return "", ErrNoMatch
	}

	var (
		best    *semver.Version
		bestRaw string
	)
	for _, candidate := range versions {
		v, err := semver.StrictNewVersion(candidate)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = candidate
		}
	}
	if best == nil {
		return "", ErrNoMatch
	}
	return bestRaw, nil
}

// Sort 按 semver 升序排列版本，无法解析的版本按字典序排在最前。
func Sort(versions []string) []string {
	sorted := append([]string(nil), versions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, errA := semver.NewVersion(sorted[i])
		b, errB := semver.NewVersion(sorted[j])
		switch {
		case errA != nil && errB != nil:
			return sorted[i] < sorted[j]
		case errA != nil:
			return true
		case errB != nil:
			return false
		}
		return a.LessThan(b)
	})
	return sorted
}
