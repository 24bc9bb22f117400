package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type envelope struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Created  int64        `json:"created"`
	Livemode bool         `json:"livemode"`
	Data     envelopeData `json:"data"`
}

type envelopeData struct {
	Object json.RawMessage `json:"object"`
}

// expandableID accepts either a bare object ID or an expanded object.
type expandableID struct {
	ID string
}

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		e.ID = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		e.ID = strings.TrimSpace(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = strings.TrimSpace(obj.ID)
	return nil
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                string            `json:"id"`
	Customer          expandableID      `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []subscriptionItem `json:"data"`
	} `json:"items"`
}

type subscriptionItem struct {
	CurrentPeriodEnd int64 `json:"current_period_end"`
	Quantity         int64 `json:"quantity"`
	Price            struct {
		ID         string `json:"id"`
		UnitAmount int64  `json:"unit_amount"`
		Currency   string `json:"currency"`
		Recurring  *struct {
			Interval string `json:"interval"`
		} `json:"recurring"`
	} `json:"price"`
	Plan *struct {
		ID       string `json:"id"`
		Interval string `json:"interval"`
	} `json:"plan"`
}

// periodEnd prefers the subscription-level field and falls back to the
// latest item period end used by newer API versions.
func (s subscriptionObject) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	if end <= 0 {
		return nil
	}
	ts := time.Unix(end, 0).UTC()
	return &ts
}

func (s subscriptionObject) firstItem() *subscriptionItem {
	if len(s.Items.Data) == 0 {
		return nil
	}
	return &s.Items.Data[0]
}

func (i subscriptionItem) priceID() string {
	if id := strings.TrimSpace(i.Price.ID); id != "" {
		return id
	}
	if i.Plan != nil {
		return strings.TrimSpace(i.Plan.ID)
	}
	return ""
}

func (i subscriptionItem) interval() string {
	if i.Price.Recurring != nil && i.Price.Recurring.Interval != "" {
		return i.Price.Recurring.Interval
	}
	if i.Plan != nil {
		return i.Plan.Interval
	}
	return ""
}

type invoiceObject struct {
	ID                  string       `json:"id"`
	Customer            expandableID `json:"customer"`
	Subscription        expandableID `json:"subscription"`
	Status              string       `json:"status"`
	AmountDue           int64        `json:"amount_due"`
	Currency            string       `json:"currency"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription expandableID      `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (i invoiceObject) linesPeriodEnd() *time.Time {
	var end int64
	for _, line := range i.Lines.Data {
		if line.Period.End > end {
			end = line.Period.End
		}
	}
	if end <= 0 {
		return nil
	}
	ts := time.Unix(end, 0).UTC()
	return &ts
}
