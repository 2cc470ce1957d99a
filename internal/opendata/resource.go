package opendata

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// IDField is the source-assigned record identifier column.
const IDField = "_id"

// Record is one raw datastore row. Values keep their JSON form: strings,
// json.Number, bool or nil.
type Record map[string]any

// ID returns the record's source-assigned identifier.
func (r Record) ID() (int64, bool) {
	switch v := r[IDField].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Text returns the raw value of field as text. ok is false when the field is
// absent or null.
func (r Record) Text(field string) (string, bool) {
	switch v := r[field].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// Resource is the complete raw content of one datastore resource.
type Resource struct {
	ResourceID string    `json:"resource_id"`
	Fields     []string  `json:"fields"`
	Records    []Record  `json:"records"`
	Total      int       `json:"total"`
	Pages      int       `json:"pages"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// DecodeResource decodes a Resource previously encoded with json.Marshal,
// keeping numeric record values as json.Number.
func DecodeResource(data []byte) (*Resource, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var res Resource
	if err := dec.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

type searchEnvelope struct {
	Success *bool         `json:"success"`
	Error   *apiError     `json:"error"`
	Result  *searchResult `json:"result"`
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

type searchResult struct {
	Total   *int      `json:"total"`
	Records *[]Record `json:"records"`
	Fields  *[]field  `json:"fields"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type field struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
