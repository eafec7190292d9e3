package models

import "time"

// EventTag identifies one message class; (transactionID, EventTag) keys a NotificationRecord.
type EventTag string

const (
	TagLabelReadyToLender      EventTag = "labelReadyToLender"
	TagFirstScanToBorrower     EventTag = "firstScanToBorrower"
	TagDeliveredToBorrower     EventTag = "deliveredToBorrower"
	TagReturnFirstScanToLender EventTag = "returnFirstScanToLender"
	TagShipByReminderT48       EventTag = "shipByReminderT48"
	TagShipByReminderT24       EventTag = "shipByReminderT24"
	TagShipByReminderMorning   EventTag = "shipByReminderMorning"
)

type NotificationRecord struct {
	Sent   bool      `json:"sent"`
	SentAt time.Time `json:"sentAt"`
}

func (r NotificationRecord) Fields() map[string]any {
	return map[string]any{
		"sent":   r.Sent,
		"sentAt": r.SentAt.UTC().Format(time.RFC3339),
	}
}

// TrackingClass is the result of classifying a raw carrier status.
type TrackingClass string

const (
	ClassFirstScan TrackingClass = "first-scan"
	ClassDelivered TrackingClass = "delivered"
	ClassIgnored   TrackingClass = "ignored"
)

// LegState is persisted as a discriminated string at protectedData.<leg>.state.
type LegState string

const (
	LegUnshipped               LegState = "unshipped"
	LegFirstScanNotified       LegState = "first-scan-notified"
	LegDeliveredNotified       LegState = "delivered-notified"
	LegReturnFirstScanNotified LegState = "return-first-scan-notified"
)

// NextLegState validates a transition. ok=false means the event is already reflected
// (replay) or not applicable, and no side effect may happen.
func NextLegState(leg Leg, cur LegState, class TrackingClass) (LegState, bool) {
	if cur == "" {
		cur = LegUnshipped
	}
	switch leg {
	case LegOutbound:
		switch cur {
		case LegUnshipped:
			switch class {
			case ClassFirstScan:
				return LegFirstScanNotified, true
			case ClassDelivered:
				return LegDeliveredNotified, true
			}
		case LegFirstScanNotified:
			if class == ClassDelivered {
				return LegDeliveredNotified, true
			}
		}
	case LegReturn:
		if cur == LegUnshipped && class == ClassFirstScan {
			return LegReturnFirstScanNotified, true
		}
	}
	return cur, false
}

// TagFor maps a valid transition target to the message it should produce.
func TagFor(leg Leg, next LegState) (EventTag, bool) {
	switch {
	case leg == LegOutbound && next == LegFirstScanNotified:
		return TagFirstScanToBorrower, true
	case leg == LegOutbound && next == LegDeliveredNotified:
		return TagDeliveredToBorrower, true
	case leg == LegReturn && next == LegReturnFirstScanNotified:
		return TagReturnFirstScanToLender, true
	}
	return "", false
}
