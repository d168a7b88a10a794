//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects goroutines tracked by hand that can use wg.Go (Go 1.25+).
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(work)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of defer $wg.Done() in a goroutine").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`$wg.Add(1)`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("consider $wg.Go(), which calls Add(1) itself")
}

// TimeLayouts detects reference-time layouts that have named constants.
func TimeLayouts(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime)`).
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly)`).
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(`$t.Format("15:04:05")`).
		Report(`use $t.Format(time.TimeOnly)`).
		Suggest(`$t.Format(time.TimeOnly)`)
}

// TimeSince prefers time.Since and time.Until over subtraction from Now.
func TimeSince(m dsl.Matcher) {
	m.Match(`time.Now().Sub($t)`).
		Report(`use time.Since($t)`).
		Suggest(`time.Since($t)`)

	m.Match(`$t.Sub(time.Now())`).
		Report(`use time.Until($t)`).
		Suggest(`time.Until($t)`)
}

// MinMax detects float round trips where the min and max builtins apply.
func MinMax(m dsl.Matcher) {
	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b)").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b)").
		Suggest("max($a, $b)")
}
