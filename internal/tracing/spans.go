package tracing

// Span names.
const (
	SpanRun           = "engine.run"
	SpanConfiguration = "engine.configuration"
	SpanEdition       = "engine.edition"
)

// Span attribute keys.
const (
	AttrRunID         = "run.id"
	AttrRunSeed       = "run.seed"
	AttrRunStatus     = "run.status"
	AttrConfiguration = "configuration.index"
	AttrTarget        = "configuration.target"
	AttrCombinations  = "configuration.combinations"
	AttrEdition       = "edition.index"
	AttrDNAHash       = "edition.dna_hash"
	AttrDuplicates    = "run.duplicates"
)
