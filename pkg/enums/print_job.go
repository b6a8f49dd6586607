package enums

import "fmt"

// PrintType tags the ticket layout the print server must render.
type PrintType string

const (
	PrintKitchenTicket       PrintType = "kitchen_ticket"
	PrintKitchenTicketSector PrintType = "kitchen_ticket_sector"
	PrintCustomerReceipt     PrintType = "customer_receipt"
	PrintCancellationTicket  PrintType = "cancellation_ticket"
)

var validPrintTypes = []PrintType{
	PrintKitchenTicket,
	PrintKitchenTicketSector,
	PrintCustomerReceipt,
	PrintCancellationTicket,
}

// IsValid reports whether the value matches a known print type.
func (p PrintType) IsValid() bool {
	for _, candidate := range validPrintTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePrintType converts raw input into PrintType.
func ParsePrintType(value string) (PrintType, error) {
	for _, candidate := range validPrintTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid print type %q", value)
}

// PrintJobStatus is the lifecycle of a queued print job.
type PrintJobStatus string

const (
	PrintJobPending PrintJobStatus = "pending"
	PrintJobPrinted PrintJobStatus = "printed"
	PrintJobFailed  PrintJobStatus = "failed"
)

var validPrintJobStatuses = []PrintJobStatus{
	PrintJobPending,
	PrintJobPrinted,
	PrintJobFailed,
}

// IsValid reports whether the value matches a known status.
func (s PrintJobStatus) IsValid() bool {
	for _, candidate := range validPrintJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PrintJobStatus) IsTerminal() bool {
	return s == PrintJobPrinted || s == PrintJobFailed
}

// CanTransitionTo enforces the forward-only pending -> printed|failed lifecycle.
func (s PrintJobStatus) CanTransitionTo(next PrintJobStatus) bool {
	return s == PrintJobPending && next.IsTerminal()
}

// ParsePrintJobStatus converts raw input into PrintJobStatus.
func ParsePrintJobStatus(value string) (PrintJobStatus, error) {
	for _, candidate := range validPrintJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid print job status %q", value)
}
