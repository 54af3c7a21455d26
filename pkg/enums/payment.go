package enums

import "fmt"

// LaybyPaymentStatus tracks the lifecycle of a recorded payment event.
type LaybyPaymentStatus string

const (
	LaybyPaymentStatusPending   LaybyPaymentStatus = "pending"
	LaybyPaymentStatusCompleted LaybyPaymentStatus = "completed"
	LaybyPaymentStatusFailed    LaybyPaymentStatus = "failed"
	LaybyPaymentStatusRefunded  LaybyPaymentStatus = "refunded"
)

var validLaybyPaymentStatuses = []LaybyPaymentStatus{
	LaybyPaymentStatusPending,
	LaybyPaymentStatusCompleted,
	LaybyPaymentStatusFailed,
	LaybyPaymentStatusRefunded,
}

// IsValid reports whether the value is a known LaybyPaymentStatus.
func (s LaybyPaymentStatus) IsValid() bool {
	for _, candidate := range validLaybyPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLaybyPaymentStatus converts raw input into a LaybyPaymentStatus.
func ParseLaybyPaymentStatus(value string) (LaybyPaymentStatus, error) {
	for _, candidate := range validLaybyPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// LaybyPaymentType classifies what a payment was for. The type is inferred
// from the layby state at record time, not supplied by the caller.
type LaybyPaymentType string

const (
	PaymentTypeDeposit     LaybyPaymentType = "deposit"
	PaymentTypeInstallment LaybyPaymentType = "installment"
	PaymentTypeFinal       LaybyPaymentType = "final"
	PaymentTypeOverpayment LaybyPaymentType = "overpayment"
)

var validLaybyPaymentTypes = []LaybyPaymentType{
	PaymentTypeDeposit,
	PaymentTypeInstallment,
	PaymentTypeFinal,
	PaymentTypeOverpayment,
}

// IsValid reports whether the value is a known LaybyPaymentType.
func (t LaybyPaymentType) IsValid() bool {
	for _, candidate := range validLaybyPaymentTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLaybyPaymentType converts raw input into a LaybyPaymentType.
func ParseLaybyPaymentType(value string) (LaybyPaymentType, error) {
	for _, candidate := range validLaybyPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}

// PaymentMethod is the tender used for a layby payment.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodEFT          PaymentMethod = "eft"
	PaymentMethodMobileWallet PaymentMethod = "mobile_wallet"
	PaymentMethodVoucher      PaymentMethod = "voucher"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodEFT,
	PaymentMethodMobileWallet,
	PaymentMethodVoucher,
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
