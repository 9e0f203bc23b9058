package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ChannelKind identifies a delivery medium.
type ChannelKind string

const (
	ChannelInApp    ChannelKind = "in-app"
	ChannelEmail    ChannelKind = "email"
	ChannelSMS      ChannelKind = "sms"
	ChannelPhone    ChannelKind = "phone"
	ChannelTelegram ChannelKind = "telegram"
	ChannelSlack    ChannelKind = "slack"
	ChannelWebhook  ChannelKind = "webhook"
)

// AllChannelKinds lists every known channel kind in display order.
var AllChannelKinds = []ChannelKind{
	ChannelInApp,
	ChannelEmail,
	ChannelSMS,
	ChannelPhone,
	ChannelTelegram,
	ChannelSlack,
	ChannelWebhook,
}

// Valid reports whether k is a known channel kind.
func (k ChannelKind) Valid() bool {
	for _, known := range AllChannelKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseChannelKind converts s into a known ChannelKind.
func ParseChannelKind(s string) (ChannelKind, error) {
	k := ChannelKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return k, nil
}

// ParseChannelList converts each entry of names, rejecting unknown kinds.
func ParseChannelList(names []string) (ChannelList, error) {
	list := make(ChannelList, 0, len(names))
	for _, name := range names {
		k, err := ParseChannelKind(name)
		if err != nil {
			return nil, err
		}
		list = append(list, k)
	}
	return list, nil
}

// ChannelList is an ordered set of channel kinds. It is stored as a JSON
// array; unknown kinds found in storage are dropped on read.
type ChannelList []ChannelKind

// Contains reports whether k is in the list.
func (l ChannelList) Contains(k ChannelKind) bool {
	for _, c := range l {
		if c == k {
			return true
		}
	}
	return false
}

// Intersect returns the kinds of l that are also in other, keeping the order
// of l and dropping duplicates.
func (l ChannelList) Intersect(other ChannelList) ChannelList {
	out := make(ChannelList, 0, len(l))
	for _, k := range l {
		if other.Contains(k) && !out.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Value implements driver.Valuer.
func (l ChannelList) Value() (driver.Value, error) {
	if l == nil {
		l = ChannelList{}
	}
	data, err := json.Marshal([]ChannelKind(l))
	if err != nil {
		return nil, fmt.Errorf("marshal channels: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *ChannelList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = ChannelList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan channels: unsupported type %T", src)
	}

	var raw []string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("scan channels: %w", err)
		}
	}

	list := make(ChannelList, 0, len(raw))
	for _, name := range raw {
		if k := ChannelKind(name); k.Valid() && !list.Contains(k) {
			list = append(list, k)
		}
	}
	*l = list
	return nil
}
