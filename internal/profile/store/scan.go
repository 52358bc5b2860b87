package store

import (
	"fmt"
	"time"
)

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999Z",
	"2006-01-02 15:04:05",
}

// nullTime scans timestamps from every supported driver: time.Time from
// postgres and mysql (parseTime), text from sqlite.
type nullTime struct {
	Time *time.Time
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time = nil
		return nil
	case time.Time:
		t := v.UTC()
		n.Time = &t
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	case int64:
		t := time.Unix(v, 0).UTC()
		n.Time = &t
		return nil
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			n.Time = &t
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognised format %q", s)
}
