package metrics

// MaxMetricLabelLength caps label values to keep metric cardinality and
// storage bounded.
const MaxMetricLabelLength = 64

// SanitizeMetricLabel truncates a label value to MaxMetricLabelLength.
func SanitizeMetricLabel(value string) string {
	if len(value) > MaxMetricLabelLength {
		return value[:MaxMetricLabelLength]
	}

	return value
}
