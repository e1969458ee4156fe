package runtime

// RunArgs is the dispatch policy of one run. It is read-only once the run
// starts.
type RunArgs struct {
	// AllErrorsFatal aborts the run on the first failure. Otherwise a
	// failed statement produces an Error value and evaluation continues.
	AllErrorsFatal bool `json:"all_errors_fatal"`
	// IgnoreSymbolNotFound makes an unresolved symbol produce None, so the
	// prior result is kept. It takes precedence over AllErrorsFatal for
	// unresolved symbols only.
	IgnoreSymbolNotFound bool `json:"ignore_symbol_not_found"`
	// PreferNoneOverPriorResult lets a None result replace the prior one.
	PreferNoneOverPriorResult bool `json:"prefer_none_over_prior_result"`
	// RequireAliases means names arrive pre-resolved: a dotted name is not
	// split into module and symbol but looked up whole along the chain.
	RequireAliases bool `json:"require_aliases"`
	// IncludeNonePrior passes a None prior to prior-taking conventions
	// instead of leaving it out.
	IncludeNonePrior bool `json:"include_none_prior"`
}
