package models

import (
	"errors"
	"net/url"
	"strings"
)

const (
	CarrierUSPS  = "USPS"
	CarrierFedEx = "FedEx"
	CarrierUPS   = "UPS"
)

var ErrTrackingNumberRequired = errors.New("tracking number is required when a carrier is given")

// Shipment is the carrier hand-off recorded when an order ships.
type Shipment struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// NewShipment normalizes carrier names and rejects a carrier without a tracking number.
// Returns nil when both values are blank.
func NewShipment(carrier, trackingNumber string) (*Shipment, error) {
	carrier = NormalizeCarrier(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrier == "" && trackingNumber == "" {
		return nil, nil
	}
	if trackingNumber == "" {
		return nil, ErrTrackingNumberRequired
	}
	return &Shipment{Carrier: carrier, TrackingNumber: trackingNumber}, nil
}

// NormalizeCarrier returns the display name for known carriers and keeps custom names as given.
func NormalizeCarrier(value string) string {
	trimmed := strings.TrimSpace(value)
	key := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(trimmed))

	switch key {
	case "usps", "unitedstatespostalservice":
		return CarrierUSPS
	case "fedex", "federalexpress":
		return CarrierFedEx
	case "ups", "unitedparcelservice":
		return CarrierUPS
	default:
		return trimmed
	}
}

// TrackingURL links to the carrier's tracking page. Unknown carriers return empty.
func (s *Shipment) TrackingURL() string {
	if s == nil || s.TrackingNumber == "" {
		return ""
	}

	escaped := url.QueryEscape(s.TrackingNumber)
	switch NormalizeCarrier(s.Carrier) {
	case CarrierUSPS:
		return "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + escaped
	case CarrierFedEx:
		return "https://www.fedex.com/fedextrack/?trknbr=" + escaped
	case CarrierUPS:
		return "https://www.ups.com/track?tracknum=" + escaped
	default:
		return ""
	}
}
