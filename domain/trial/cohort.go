package trial

// CohortFilter declares the analysis population. A sample is in the cohort when
// its subject matches the subject-level predicate and the sample matches the
// sample-level one. Zero-valued string fields mean "no constraint".
type CohortFilter struct {
	Condition  string `json:"condition"`
	SampleType string `json:"sample_type"`
	Treatment  string `json:"treatment"`
	// RequireResponse drops subjects with a null response; responder/non-responder
	// comparisons are meaningless without it.
	RequireResponse bool `json:"require_response"`
	// Timepoint restricts to a single sampling day when non-nil
	Timepoint *int `json:"timepoint,omitempty"`
}

// DefaultCohort is the documented trial cohort: melanoma PBMC samples from
// subjects on the trial drug with a recorded response.
func DefaultCohort() CohortFilter {
	return CohortFilter{
		Condition:       "melanoma",
		SampleType:      "PBMC",
		Treatment:       "tr1",
		RequireResponse: true,
	}
}

// WithTimepoint returns a copy of the filter restricted to one sampling day
func (f CohortFilter) WithTimepoint(day int) CohortFilter {
	f.Timepoint = &day
	return f
}

// MatchesSubject reports whether a subject satisfies the subject-level predicate
func (f CohortFilter) MatchesSubject(s Subject) bool {
	if f.Condition != "" && s.Condition != f.Condition {
		return false
	}
	if f.Treatment != "" && s.Treatment != f.Treatment {
		return false
	}
	if f.RequireResponse && !s.HasResponse() {
		return false
	}
	return true
}

// MatchesSample reports whether a sample satisfies the sample-level predicate.
// The subject-level predicate must be checked separately.
func (f CohortFilter) MatchesSample(s Sample) bool {
	if f.SampleType != "" && s.SampleType != f.SampleType {
		return false
	}
	if f.Timepoint != nil && s.TimeFromTreatmentStart != *f.Timepoint {
		return false
	}
	// Off-schedule samples never enter stratified or pooled analysis
	return IsValidTimepoint(s.TimeFromTreatmentStart)
}
