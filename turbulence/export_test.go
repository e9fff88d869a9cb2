package turbulence

// Internals exposed to the tests.
var (
	VonKarmanEntryTerms = vonKarmanEntry
	KolmogorovEntry     = kolmogorovEntry
)

const VonKarmanSeriesTerms = vonKarmanSeriesTerms
