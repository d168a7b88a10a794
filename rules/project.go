//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StdErrorsImport flags the standard errors package outside internal/errors.
// Errors built there carry component, category and context for telemetry.
func StdErrorsImport(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") &&
			!m.File().PkgPath.Matches(`/internal/errors$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report(`use internal/errors: errors.NewStd($msg) for sentinels or errors.Newf(...).Build()`)
}

// PrintInLibrary flags direct printing from internal packages, which log
// through their module logger instead. Console output goes through an
// explicit io.Writer.
func PrintInLibrary(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `fmt.Print($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("log through the module logger instead of printing")
}

// SampleTruncation flags float to PCM16 conversions that truncate instead
// of rounding.
func SampleTruncation(m dsl.Matcher) {
	m.Match(`int16($x * 32767)`, `int16($x * 32767.0)`, `int16(32767 * $x)`).
		Report("round before converting to int16: int16(math.Round($x * 32767))")
}

// DroppedCancel flags context timeouts whose cancel func is dropped.
func DroppedCancel(m dsl.Matcher) {
	m.Match(`$ctx, _ := context.WithTimeout($*_)`, `$ctx, _ = context.WithTimeout($*_)`).
		Report("keep and defer the cancel func of context.WithTimeout")
}
