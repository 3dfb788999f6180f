package model

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// AnonymousUser owns records created without a logged-in session.
const AnonymousUser = "anonymous"

// Source types recorded in MusicRecord.SourceType.
const (
	SourceSettings = "settings"
	SourceDetail   = "detail"
	SourceImage    = "image"
	SourceVideo    = "video"
	SourceUpload   = "upload"
)

// TimestampLayout is used for created_at values written by this service.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// BPM is a tempo exactly as it was written: a number, a numeric string, or
// anything else an older client stored. Int reads it; encoding re-emits the
// original token.
type BPM []byte

// NewBPM returns v as a JSON number token.
func NewBPM(v int) BPM {
	return BPM(strconv.AppendInt(nil, int64(v), 10))
}

// IntPtr returns a *BPM for v; handy for optional fields.
func IntPtr(v int) *BPM {
	b := NewBPM(v)
	return &b
}

func (b BPM) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

func (b *BPM) UnmarshalJSON(data []byte) error {
	*b = append(BPM(nil), data...)
	return nil
}

// Int returns the tempo in whole beats per minute. Nil, null and values that
// are not numeric read as 0.
func (b *BPM) Int() int {
	if b == nil {
		return 0
	}
	s := strings.TrimSpace(string(*b))
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err != nil {
			return 0
		}
		s = strings.TrimSpace(unquoted)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// Settings is the snapshot of the first wizard step.
type Settings struct {
	Mood     string `json:"mood,omitempty"`
	Speed    *BPM   `json:"speed,omitempty"`
	Location string `json:"location,omitempty"`
}

// MusicRecord is one entry of the local fallback store.
type MusicRecord struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Mood             string    `json:"mood,omitempty"`
	Location         string    `json:"location,omitempty"`
	Place            string    `json:"place,omitempty"` // legacy name of Location
	Speed            *BPM      `json:"speed,omitempty"`
	Tempo            *BPM      `json:"tempo,omitempty"` // legacy name of Speed
	CreatedAt        string    `json:"created_at,omitempty"`
	FilePath         string    `json:"file_path,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	DetailText       string    `json:"detail_text,omitempty"`
	FullPrompt       string    `json:"full_prompt,omitempty"`
	OriginalSettings *Settings `json:"original_settings,omitempty"`
	SourceType       string    `json:"source_type,omitempty"`
	UploadFile       string    `json:"upload_file,omitempty"` // uploaded image or video the music was made from
	MusicURL         string    `json:"music_url,omitempty"`   // set on records returned by the backend

	// Extra keeps fields this version does not know about so a rewrite of the
	// file does not drop them.
	Extra map[string]json.RawMessage `json:"-"`
}

type recordAlias MusicRecord

var knownFields = []string{
	"id", "title", "mood", "location", "place", "speed", "tempo", "created_at",
	"file_path", "user_id", "detail_text", "full_prompt", "original_settings",
	"source_type", "upload_file", "music_url",
}

func (m *MusicRecord) UnmarshalJSON(data []byte) error {
	var alias recordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}
	*m = MusicRecord(alias)
	m.Extra = nil
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

func (m MusicRecord) MarshalJSON() ([]byte, error) {
	base, err := marshalNoEscape(recordAlias(m))
	if err != nil || len(m.Extra) == 0 {
		return base, err
	}
	merged := make(map[string]json.RawMessage, len(m.Extra)+len(knownFields))
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return marshalNoEscape(merged)
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EffectiveLocation returns location, falling back to the legacy place field.
func (m *MusicRecord) EffectiveLocation() string {
	if m.Location != "" {
		return m.Location
	}
	return m.Place
}

// EffectiveTempo returns speed, falling back to the legacy tempo field, or 0.
func (m *MusicRecord) EffectiveTempo() int {
	switch {
	case m.Speed != nil:
		return m.Speed.Int()
	case m.Tempo != nil:
		return m.Tempo.Int()
	default:
		return 0
	}
}

// HasOwner reports whether the record carries any ownership context.
func (m *MusicRecord) HasOwner() bool {
	return m.UserID != ""
}

// MergeFrom copies every non-zero field of patch onto m. ID and an already set
// CreatedAt are never changed.
func (m *MusicRecord) MergeFrom(patch MusicRecord) {
	if patch.Title != "" {
		m.Title = patch.Title
	}
	if patch.Mood != "" {
		m.Mood = patch.Mood
	}
	if patch.Location != "" {
		m.Location = patch.Location
	}
	if patch.Place != "" {
		m.Place = patch.Place
	}
	if patch.Speed != nil {
		m.Speed = patch.Speed
	}
	if patch.Tempo != nil {
		m.Tempo = patch.Tempo
	}
	if m.CreatedAt == "" {
		m.CreatedAt = patch.CreatedAt
	}
	if patch.FilePath != "" {
		m.FilePath = patch.FilePath
	}
	if patch.UserID != "" {
		m.UserID = patch.UserID
	}
	if patch.DetailText != "" {
		m.DetailText = patch.DetailText
	}
	if patch.FullPrompt != "" {
		m.FullPrompt = patch.FullPrompt
	}
	if patch.OriginalSettings != nil {
		m.OriginalSettings = patch.OriginalSettings
	}
	if patch.SourceType != "" {
		m.SourceType = patch.SourceType
	}
	if patch.UploadFile != "" {
		m.UploadFile = patch.UploadFile
	}
	if patch.MusicURL != "" {
		m.MusicURL = patch.MusicURL
	}
	for k, v := range patch.Extra {
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage, len(patch.Extra))
		}
		m.Extra[k] = v
	}
}

// Settings returns the original settings snapshot, or one built from the
// record's own fields.
func (m *MusicRecord) Settings() Settings {
	if m.OriginalSettings != nil {
		return *m.OriginalSettings
	}
	speed := m.Speed
	if speed == nil {
		speed = m.Tempo
	}
	return Settings{
		Mood:     m.Mood,
		Speed:    speed,
		Location: m.EffectiveLocation(),
	}
}

// Timestamp formats t the way created_at is stored.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO-8601 values.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CreatedAfter reports whether a was created strictly after b. Values that do
// not parse are compared as strings.
func CreatedAfter(a, b string) bool {
	ta, okA := ParseTimestamp(a)
	tb, okB := ParseTimestamp(b)
	if okA && okB {
		return ta.After(tb)
	}
	return a > b
}
