package lead

import (
	"time"

	"github.com/boothkit/boothkit/remote"
)

// Remote records use a flat snake_case vocabulary distinct from the
// in-memory camelCase convention. Translation happens here, at the
// boundary, and nowhere else.

// ToRecord translates a lead into remote vocabulary. The id is included
// only when the lead has been acknowledged by the remote store; temporary
// ids never leave the client.
func (l Lead) ToRecord() remote.Record {
	rec := remote.Record{
		"contact_name": l.ContactName,
		"store_name":   l.StoreName,
		"email":        l.Email,
		"phone":        l.Phone,
		"zip_code":     l.ZipCode,
		"city":         l.City,
		"state":        l.State,
		"interests":    l.Interests,
		"temperature":  string(l.Temperature),
		"notes":        l.Notes,
		"voice_note":   l.VoiceNote,
		"created_by":   l.CreatedBy,
		"show_id":      l.ShowID,
	}
	if l.Synced() {
		rec["id"] = l.ID
	}
	if !l.CreatedAt.IsZero() {
		rec["created_at"] = l.CreatedAt.Format(time.RFC3339Nano)
	}
	if !l.UpdatedAt.IsZero() {
		rec["updated_at"] = l.UpdatedAt.Format(time.RFC3339Nano)
	}
	return rec
}

// FromRecord translates a remote record into a Lead.
func FromRecord(rec remote.Record) Lead {
	return Lead{
		ID:          str(rec, "id"),
		ShowID:      str(rec, "show_id"),
		ContactName: str(rec, "contact_name"),
		StoreName:   str(rec, "store_name"),
		Email:       str(rec, "email"),
		Phone:       str(rec, "phone"),
		ZipCode:     str(rec, "zip_code"),
		City:        str(rec, "city"),
		State:       str(rec, "state"),
		Interests:   strSlice(rec, "interests"),
		Temperature: Temperature(str(rec, "temperature")),
		Notes:       str(rec, "notes"),
		VoiceNote:   str(rec, "voice_note"),
		CreatedBy:   str(rec, "created_by"),
		CreatedAt:   timeField(rec, "created_at"),
		UpdatedAt:   timeField(rec, "updated_at"),
	}
}

// Record translates a partial update into remote vocabulary, carrying only
// the fields the update sets.
func (u Update) Record() remote.Record {
	rec := remote.Record{}
	if u.ContactName != nil {
		rec["contact_name"] = *u.ContactName
	}
	if u.StoreName != nil {
		rec["store_name"] = *u.StoreName
	}
	if u.Email != nil {
		rec["email"] = *u.Email
	}
	if u.Phone != nil {
		rec["phone"] = *u.Phone
	}
	if u.ZipCode != nil {
		rec["zip_code"] = *u.ZipCode
	}
	if u.City != nil {
		rec["city"] = *u.City
	}
	if u.State != nil {
		rec["state"] = *u.State
	}
	if u.Interests != nil {
		rec["interests"] = *u.Interests
	}
	if u.Temperature != nil {
		rec["temperature"] = string(*u.Temperature)
	}
	if u.Notes != nil {
		rec["notes"] = *u.Notes
	}
	if u.VoiceNote != nil {
		rec["voice_note"] = *u.VoiceNote
	}
	return rec
}

// UpdateFromRecord translates a partial remote record back into an Update.
// The engine uses it to rewrite queued payloads.
func UpdateFromRecord(rec remote.Record) Update {
	var u Update
	if v, ok := rec["contact_name"].(string); ok {
		u.ContactName = &v
	}
	if v, ok := rec["store_name"].(string); ok {
		u.StoreName = &v
	}
	if v, ok := rec["email"].(string); ok {
		u.Email = &v
	}
	if v, ok := rec["phone"].(string); ok {
		u.Phone = &v
	}
	if v, ok := rec["zip_code"].(string); ok {
		u.ZipCode = &v
	}
	if v, ok := rec["city"].(string); ok {
		u.City = &v
	}
	if v, ok := rec["state"].(string); ok {
		u.State = &v
	}
	if _, ok := rec["interests"]; ok {
		vs := strSlice(rec, "interests")
		u.Interests = &vs
	}
	if v, ok := rec["temperature"].(string); ok {
		t := Temperature(v)
		u.Temperature = &t
	}
	if v, ok := rec["notes"].(string); ok {
		u.Notes = &v
	}
	if v, ok := rec["voice_note"].(string); ok {
		u.VoiceNote = &v
	}
	return u
}

// ToRecord translates a staff member into remote vocabulary.
func (u User) ToRecord() remote.Record {
	rec := remote.Record{
		"name":     u.Name,
		"passcode": u.Passcode,
		"show_id":  u.ShowID,
	}
	if u.ID != "" {
		rec["id"] = u.ID
	}
	if !u.CreatedAt.IsZero() {
		rec["created_at"] = u.CreatedAt.Format(time.RFC3339Nano)
	}
	return rec
}

// UserFromRecord translates a remote record into a User.
func UserFromRecord(rec remote.Record) User {
	return User{
		ID:        str(rec, "id"),
		ShowID:    str(rec, "show_id"),
		Name:      str(rec, "name"),
		Passcode:  str(rec, "passcode"),
		CreatedAt: timeField(rec, "created_at"),
	}
}

func str(rec remote.Record, key string) string {
	v, _ := rec[key].(string)
	return v
}

// strSlice tolerates both []string and the []any produced by JSON decoding.
func strSlice(rec remote.Record, key string) []string {
	switch v := rec[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func timeField(rec remote.Record, key string) time.Time {
	switch v := rec[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
