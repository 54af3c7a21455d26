package enums

import "fmt"

// PaymentFrequency is the cadence installments fall due on.
type PaymentFrequency string

const (
	FrequencyWeekly   PaymentFrequency = "weekly"
	FrequencyBiWeekly PaymentFrequency = "bi_weekly"
	FrequencyMonthly  PaymentFrequency = "monthly"
)

var validPaymentFrequencies = []PaymentFrequency{
	FrequencyWeekly,
	FrequencyBiWeekly,
	FrequencyMonthly,
}

// String implements fmt.Stringer.
func (f PaymentFrequency) String() string {
	return string(f)
}

// IsValid reports whether the value is a known PaymentFrequency.
func (f PaymentFrequency) IsValid() bool {
	for _, candidate := range validPaymentFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParsePaymentFrequency converts raw input into a PaymentFrequency.
func ParsePaymentFrequency(value string) (PaymentFrequency, error) {
	for _, candidate := range validPaymentFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment frequency %q", value)
}
