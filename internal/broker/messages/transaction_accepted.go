package messages

import (
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

const TopicTransactionAccepted = "transaction.accepted"

// TransactionAccepted is published once a booking is accepted and labels should be bought.
// Key: transaction id.
type TransactionAccepted struct {
	EventID       string    `json:"event_id"`
	TransactionID string    `json:"transaction_id"`
	AcceptedAt    time.Time `json:"accepted_at"`

	BookingStart string `json:"booking_start,omitempty"`
	ListingTitle string `json:"listing_title,omitempty"`

	ProviderID string         `json:"provider_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	Provider   models.Address `json:"provider"`
	Customer   models.Address `json:"customer"`

	ReturnAddress *models.Address `json:"return_address,omitempty"`
	Parcel        *models.Parcel  `json:"parcel,omitempty"`
}

func (m TransactionAccepted) Validate() error {
	if m.TransactionID == "" {
		return errors.New("transaction_id is required")
	}
	return nil
}

// Transaction converts the message into the local mirror record.
func (m TransactionAccepted) Transaction() *models.Transaction {
	tx := &models.Transaction{
		ID:            m.TransactionID,
		Provider:      models.Party{ID: m.ProviderID, Name: m.Provider.Name, Phone: m.Provider.Phone},
		Customer:      models.Party{ID: m.CustomerID, Name: m.Customer.Name, Phone: m.Customer.Phone},
		ProtectedData: map[string]any{},
		Metadata:      map[string]any{},
		CreatedAt:     m.AcceptedAt,
	}
	if m.ListingTitle != "" {
		tx.Metadata["listingTitle"] = m.ListingTitle
	}
	if t, err := time.Parse(time.RFC3339, m.BookingStart); err == nil {
		tx.BookingStart = &t
	} else if t, err := time.Parse(time.DateOnly, m.BookingStart); err == nil {
		tx.BookingStart = &t
	}
	return tx
}
