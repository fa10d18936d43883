package trigger

// PushFilters is the chain for branch pushes: user, branch, skip marker,
// path and expression. Optional filters are omitted when unconfigured.
func PushFilters(cfg *CompiledConfig) []Filter {
	filters := make([]Filter, 0, 5)
	if cfg.HasUserRules() {
		filters = append(filters, NewUserFilter(cfg.IncludedUsers, cfg.ExcludedUsers))
	}
	filters = append(filters, NewBranchFilter(cfg.IncludedBranches, cfg.ExcludedBranches))
	if cfg.SkipMarkers != nil {
		filters = append(filters, NewSkipCIFilter(cfg.SkipMarkers))
	}
	if cfg.HasPathRules() {
		filters = append(filters, NewPathFilter(cfg.IncludedPaths, cfg.ExcludedPaths))
	}
	if cfg.When != nil {
		filters = append(filters, NewExpressionFilter(cfg.When))
	}
	return filters
}

// TagFilters is the chain for tag pushes: user, tag and semver. Tag
// patterns apply to the tag name, or branch patterns when no tag pattern is
// set. Path and skip marker filters are never built.
func TagFilters(cfg *CompiledConfig) []Filter {
	include, exclude := cfg.IncludedBranches, cfg.ExcludedBranches
	if cfg.HasTagRules() {
		include, exclude = cfg.IncludedTags, cfg.ExcludedTags
	}
	filters := make([]Filter, 0, 3)
	if cfg.HasUserRules() {
		filters = append(filters, NewUserFilter(cfg.IncludedUsers, cfg.ExcludedUsers))
	}
	filters = append(filters, NewTagFilter(include, exclude))
	if cfg.TagConstraint != nil {
		filters = append(filters, NewSemverFilter(cfg.TagConstraint))
	}
	return filters
}

// MergeRequestFilters is the chain for merge and pull requests. Branch
// patterns apply to the target branch and the skip marker is read from the
// title.
func MergeRequestFilters(cfg *CompiledConfig) []Filter {
	filters := make([]Filter, 0, 6)
	if cfg.HasUserRules() {
		filters = append(filters, NewUserFilter(cfg.IncludedUsers, cfg.ExcludedUsers))
	}
	if len(cfg.Actions) > 0 {
		filters = append(filters, NewActionFilter(cfg.Actions))
	}
	filters = append(filters, NewTargetBranchFilter(cfg.IncludedBranches, cfg.ExcludedBranches))
	if cfg.HasSourceBranchRules() {
		filters = append(filters, NewSourceBranchFilter(cfg.IncludedSourceBranches, cfg.ExcludedSourceBranches))
	}
	if cfg.SkipMarkers != nil {
		filters = append(filters, NewTitleSkipCIFilter(cfg.SkipMarkers))
	}
	if cfg.When != nil {
		filters = append(filters, NewExpressionFilter(cfg.When))
	}
	return filters
}
