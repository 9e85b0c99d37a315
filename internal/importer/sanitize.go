package importer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// Per-class caps on array fields and string lengths. Records exceeding a cap
// fail validation and are skipped individually.
const (
	MaxUsernames   = 1000
	MaxNotes       = 10000
	MaxIPEntries   = 10000
	MaxLoginsPerIP = 100000
	MaxPunishments = 50000

	maxIdentifierLen = 256
	maxTextLen       = 4096
	maxDataDepth     = 16
)

// operatorPrefix marks store operators ($where, $gt, ...). Values in
// identifier fields must not start with it and object keys carrying it are
// dropped, so no import can smuggle a query operator into the store.
const operatorPrefix = "$"

// Object keys that would collide with prototype internals in the tool that
// produced the export. Dropped recursively from free-form maps.
var pollutedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Timestamps must land in [1970, 2100) to be considered real instants.
var (
	minInstant = time.Unix(0, 0).UTC()
	maxInstant = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// ValidatePlayer coerces one raw player record (at the given index in the
// players array) into a typed, bounded Player. It is a pure function; a
// returned *ValidationError names the offending field and index.
func ValidatePlayer(raw interface{}, index int) (*models.Player, error) {
	rec, ok := raw.(map[string]interface{})
	if !ok {
		return nil, validationErrorf(index, "", "record is not an object")
	}

	id, err := identifierField(rec["id"], index, "id", true)
	if err != nil {
		return nil, err
	}

	p := &models.Player{ID: id}

	if p.Usernames, err = validateUsernames(rec["usernames"], index); err != nil {
		return nil, err
	}
	if p.Notes, err = validateNotes(rec["notes"], index, "notes", MaxNotes); err != nil {
		return nil, err
	}
	if p.IPs, err = validateIPs(rec["ips"], index); err != nil {
		return nil, err
	}
	if p.Punishments, err = validatePunishments(rec["punishments"], index); err != nil {
		return nil, err
	}
	p.Data = SanitizeData(rec["data"])
	return p, nil
}

func validateUsernames(raw interface{}, index int) ([]models.UsernameEntry, error) {
	arr, err := arrayField(raw, index, "usernames", MaxUsernames)
	if err != nil || arr == nil {
		return nil, err
	}
	out := make([]models.UsernameEntry, 0, len(arr))
	for i, el := range arr {
		field := "usernames[" + strconv.Itoa(i) + "]"
		switch v := el.(type) {
		case string:
			name, err := boundedIdentifier(v, index, field)
			if err != nil {
				return nil, err
			}
			out = append(out, models.UsernameEntry{Name: name, At: minInstant})
		case map[string]interface{}:
			name, err := identifierField(v["name"], index, field+".name", true)
			if err != nil {
				return nil, err
			}
			at, err := optionalInstant(v["at"], index, field+".at")
			if err != nil {
				return nil, err
			}
			e := models.UsernameEntry{Name: name, At: minInstant}
			if at != nil {
				e.At = *at
			}
			out = append(out, e)
		default:
			return nil, validationErrorf(index, field, "must be a string or an object")
		}
	}
	return out, nil
}

func validateNotes(raw interface{}, index int, field string, limit int) ([]models.StaffNote, error) {
	arr, err := arrayField(raw, index, field, limit)
	if err != nil || arr == nil {
		return nil, err
	}
	out := make([]models.StaffNote, 0, len(arr))
	for i, el := range arr {
		f := field + "[" + strconv.Itoa(i) + "]"
		switch v := el.(type) {
		case string:
			out = append(out, models.StaffNote{Text: boundedText(v), AddedAt: minInstant})
		case map[string]interface{}:
			text, err := textField(v["text"], index, f+".text", true)
			if err != nil {
				return nil, err
			}
			author, err := textField(v["author"], index, f+".author", false)
			if err != nil {
				return nil, err
			}
			at, err := optionalInstant(v["added"], index, f+".added")
			if err != nil {
				return nil, err
			}
			n := models.StaffNote{Author: author, Text: text, AddedAt: minInstant}
			if at != nil {
				n.AddedAt = *at
			}
			out = append(out, n)
		default:
			return nil, validationErrorf(index, f, "must be a string or an object")
		}
	}
	return out, nil
}

func validateIPs(raw interface{}, index int) ([]models.IPSession, error) {
	arr, err := arrayField(raw, index, "ips", MaxIPEntries)
	if err != nil || arr == nil {
		return nil, err
	}
	out := make([]models.IPSession, 0, len(arr))
	for i, el := range arr {
		field := "ips[" + strconv.Itoa(i) + "]"
		obj, ok := el.(map[string]interface{})
		if !ok {
			return nil, validationErrorf(index, field, "must be an object")
		}
		addr, err := identifierField(obj["address"], index, field+".address", true)
		if err != nil {
			return nil, err
		}
		if !validDottedQuad(addr) {
			return nil, validationErrorf(index, field+".address", "not a valid IPv4 address")
		}
		sess := models.IPSession{Address: addr}
		if sess.Country, err = textField(obj["country"], index, field+".country", false); err != nil {
			return nil, err
		}
		if sess.Region, err = textField(obj["region"], index, field+".region", false); err != nil {
			return nil, err
		}
		if sess.ASN, err = textField(obj["asn"], index, field+".asn", false); err != nil {
			return nil, err
		}
		if sess.Proxy, err = optionalBool(obj["proxy"], index, field+".proxy"); err != nil {
			return nil, err
		}
		if sess.Hosting, err = optionalBool(obj["hosting"], index, field+".hosting"); err != nil {
			return nil, err
		}
		first, err := optionalInstant(obj["firstLogin"], index, field+".firstLogin")
		if err != nil {
			return nil, err
		}

		logins, err := arrayField(obj["logins"], index, field+".logins", MaxLoginsPerIP)
		if err != nil {
			return nil, err
		}
		for j, l := range logins {
			ts, err := instantField(l, index, field+".logins["+strconv.Itoa(j)+"]")
			if err != nil {
				return nil, err
			}
			sess.Logins = append(sess.Logins, ts)
		}

		switch {
		case first != nil:
			sess.FirstLogin = *first
		case len(sess.Logins) > 0:
			sess.FirstLogin = sess.Logins[0]
			for _, ts := range sess.Logins[1:] {
				if ts.Before(sess.FirstLogin) {
					sess.FirstLogin = ts
				}
			}
		default:
			sess.FirstLogin = minInstant
		}
		out = append(out, sess)
	}
	return out, nil
}

func validatePunishments(raw interface{}, index int) ([]models.Punishment, error) {
	arr, err := arrayField(raw, index, "punishments", MaxPunishments)
	if err != nil || arr == nil {
		return nil, err
	}
	out := make([]models.Punishment, 0, len(arr))
	for i, el := range arr {
		field := "punishments[" + strconv.Itoa(i) + "]"
		obj, ok := el.(map[string]interface{})
		if !ok {
			return nil, validationErrorf(index, field, "must be an object")
		}
		pun, err := validatePunishment(obj, index, field)
		if err != nil {
			return nil, err
		}
		out = append(out, *pun)
	}
	return out, nil
}

func validatePunishment(obj map[string]interface{}, index int, field string) (*models.Punishment, error) {
	id, err := identifierField(obj["id"], index, field+".id", true)
	if err != nil {
		return nil, err
	}
	typ, err := ordinalField(obj["type"], index, field+".type")
	if err != nil {
		return nil, err
	}
	issuer, err := textField(obj["issuer"], index, field+".issuer", false)
	if err != nil {
		return nil, err
	}
	issued, err := instantField(obj["issued"], index, field+".issued")
	if err != nil {
		return nil, err
	}

	p := &models.Punishment{
		ID:       id,
		Type:     models.PunishmentType(typ),
		Issuer:   issuer,
		IssuedAt: issued,
	}

	if p.StartedAt, err = optionalInstant(obj["start"], index, field+".start"); err != nil {
		return nil, err
	}
	if p.Duration, err = optionalDuration(obj["duration"], index, field+".duration"); err != nil {
		return nil, err
	}
	if p.Reason, err = textField(obj["reason"], index, field+".reason", false); err != nil {
		return nil, err
	}
	active, err := optionalBool(obj["active"], index, field+".active")
	if err != nil {
		return nil, err
	}
	if active != nil {
		p.Active = *active
	}
	if p.Expiry, err = optionalInstant(obj["expiry"], index, field+".expiry"); err != nil {
		return nil, err
	}

	if p.Notes, err = validateNotes(obj["notes"], index, field+".notes", MaxNotes); err != nil {
		return nil, err
	}
	if p.Evidence, err = validateEvidence(obj["evidence"], index, field+".evidence"); err != nil {
		return nil, err
	}

	tickets, err := arrayField(obj["tickets"], index, field+".tickets", MaxNotes)
	if err != nil {
		return nil, err
	}
	for j, t := range tickets {
		s, ok := t.(string)
		if !ok {
			return nil, validationErrorf(index, field+".tickets["+strconv.Itoa(j)+"]", "must be a string")
		}
		tid, err := boundedIdentifier(s, index, field+".tickets["+strconv.Itoa(j)+"]")
		if err != nil {
			return nil, err
		}
		p.TicketIDs = append(p.TicketIDs, tid)
	}

	if p.Modifications, err = validateModifications(obj["modifications"], index, field+".modifications"); err != nil {
		return nil, err
	}
	p.Data = SanitizeData(obj["data"])
	return p, nil
}

func validateEvidence(raw interface{}, index int, field string) ([]models.Evidence, error) {
	arr, err := arrayField(raw, index, field, MaxNotes)
	if err != nil || arr == nil {
		return nil, err
	}
	out := make([]models.Evidence, 0, len(arr))
	for i, el := range arr {
		f := field + "[" + strconv.Itoa(i) + "]"
		switch v := el.(type) {
		case string:
			out = append(out, models.Evidence{Text: boundedText(v), AddedAt: minInstant})
		case map[string]interface{}:
			text, err := textField(v["text"], index, f+".text", true)
			if err != nil {
				return nil, err
			}
			issuer, err := textField(v["issuer"], index, f+".issuer", false)
			if err != nil {
				return nil, err
			}
			at, err := optionalInstant(v["added"], index, f+".added")
			if err != nil {
				return nil, err
			}
			e := models.Evidence{Issuer: issuer, Text: text, AddedAt: minInstant}
			if at != nil {
				e.AddedAt = *at
			}
			out = append(out, e)
		default:
			return nil, validationErrorf(index, f, "must be a string or an object")
		}
	}
	return out, nil
}

func validateModifications(raw interface{}, index int, field string) ([]models.ModificationEvent, error) {
	arr, err := arrayField(raw, index, field, MaxNotes)
	if err != nil || arr == nil {
		return nil, err
	}
	out := make([]models.ModificationEvent, 0, len(arr))
	for i, el := range arr {
		f := field + "[" + strconv.Itoa(i) + "]"
		obj, ok := el.(map[string]interface{})
		if !ok {
			return nil, validationErrorf(index, f, "must be an object")
		}
		typRaw, err := identifierField(obj["type"], index, f+".type", true)
		if err != nil {
			return nil, err
		}
		issuer, err := textField(obj["issuer"], index, f+".issuer", false)
		if err != nil {
			return nil, err
		}
		issued, err := instantField(obj["issued"], index, f+".issued")
		if err != nil {
			return nil, err
		}
		ev := models.ModificationEvent{
			Type:     normalizeModificationType(typRaw),
			Issuer:   issuer,
			IssuedAt: issued,
		}
		if ev.NewDuration, err = optionalDuration(obj["duration"], index, f+".duration"); err != nil {
			return nil, err
		}
		if ev.Reason, err = textField(obj["reason"], index, f+".reason", false); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// normalizeModificationType maps known export spellings onto the canonical
// tags. Unknown tags are kept as-is; the deriver ignores them.
func normalizeModificationType(s string) models.ModificationType {
	switch strings.ToLower(s) {
	case "duration_change", "change_duration", "duration":
		return models.ModDurationChange
	case "pardon", "unban", "unpunish":
		return models.ModPardon
	case "appeal_accept", "appeal_accepted":
		return models.ModAppealAccept
	case "alt_blocking", "alt_block":
		return models.ModAltBlocking
	case "wipe":
		return models.ModWipe
	}
	return models.ModificationType(strings.ToLower(s))
}

// --- field coercion helpers ---

func arrayField(raw interface{}, index int, field string, max int) ([]interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, validationErrorf(index, field, "must be an array")
	}
	if len(arr) > max {
		return nil, validationErrorf(index, field, "has %d entries, limit is %d", len(arr), max)
	}
	return arr, nil
}

// identifierField coerces a required identifier-like string: trimmed,
// length-capped, never empty, never starting with a store operator.
func identifierField(raw interface{}, index int, field string, required bool) (string, error) {
	if raw == nil {
		if required {
			return "", validationErrorf(index, field, "missing")
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", validationErrorf(index, field, "must be a string")
	}
	return boundedIdentifier(s, index, field)
}

func boundedIdentifier(s string, index int, field string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", validationErrorf(index, field, "missing")
	}
	if len(s) > maxIdentifierLen {
		return "", validationErrorf(index, field, "longer than %d bytes", maxIdentifierLen)
	}
	if strings.HasPrefix(s, operatorPrefix) {
		return "", validationErrorf(index, field, "must not start with %q", operatorPrefix)
	}
	return s, nil
}

// textField coerces a free-text string. Text is stored verbatim (a note
// reading "$where" is legitimate content), only trimmed and length-capped.
func textField(raw interface{}, index int, field string, required bool) (string, error) {
	if raw == nil {
		if required {
			return "", validationErrorf(index, field, "missing")
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", validationErrorf(index, field, "must be a string")
	}
	s = boundedText(s)
	if required && s == "" {
		return "", validationErrorf(index, field, "missing")
	}
	return s, nil
}

func boundedText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxTextLen {
		s = s[:maxTextLen]
	}
	return s
}

// instantField coerces a timestamp given as epoch milliseconds or an RFC 3339
// string, and bounds it to [1970, 2100).
func instantField(raw interface{}, index int, field string) (time.Time, error) {
	var t time.Time
	switch v := raw.(type) {
	case nil:
		return t, validationErrorf(index, field, "missing")
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return t, validationErrorf(index, field, "not a whole number of milliseconds")
		}
		t = time.UnixMilli(ms).UTC()
	case float64:
		t = time.UnixMilli(int64(v)).UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			return t, validationErrorf(index, field, "not a valid timestamp")
		}
		t = parsed.UTC()
	default:
		return t, validationErrorf(index, field, "must be a timestamp")
	}
	if t.Before(minInstant) || !t.Before(maxInstant) {
		return time.Time{}, validationErrorf(index, field, "outside the accepted range [1970, 2100)")
	}
	return t, nil
}

func optionalInstant(raw interface{}, index int, field string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := instantField(raw, index, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// optionalDuration coerces a duration in milliseconds. 0 and -1 mean
// permanent; anything else must be non-negative.
func optionalDuration(raw interface{}, index int, field string) (*int64, error) {
	if raw == nil {
		return nil, nil
	}
	var d int64
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, validationErrorf(index, field, "not a whole number of milliseconds")
		}
		d = n
	case float64:
		d = int64(v)
	default:
		return nil, validationErrorf(index, field, "must be a number")
	}
	if d < -1 {
		return nil, validationErrorf(index, field, "must be -1, 0 or positive")
	}
	return &d, nil
}

// optionalBool coerces a boolean from a JSON bool or the literal strings
// "true"/"false".
func optionalBool(raw interface{}, index int, field string) (*bool, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		b := v
		return &b, nil
	case string:
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "true":
			b := true
			return &b, nil
		case "false":
			b := false
			return &b, nil
		}
	}
	return nil, validationErrorf(index, field, "must be a boolean")
}

// validDottedQuad reports whether s is a strict dotted-quad IPv4 address with
// each octet in [0, 255]. net.ParseIP is deliberately not used here: it
// accepts IPv6 and shorthand forms the import format forbids.
func validDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
		// Reject leading zeros like "01" to keep addresses canonical.
		if len(part) > 1 && part[0] == '0' {
			return false
		}
	}
	return true
}

// ordinalField coerces a non-negative integer ordinal.
func ordinalField(raw interface{}, index int, field string) (int, error) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < 0 {
			return 0, validationErrorf(index, field, "must be a non-negative integer")
		}
		return int(n), nil
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return 0, validationErrorf(index, field, "must be a non-negative integer")
		}
		return int(v), nil
	case nil:
		return 0, validationErrorf(index, field, "missing")
	}
	return 0, validationErrorf(index, field, "must be a non-negative integer")
}

// --- free-form data sanitization ---

// SanitizeData converts a raw free-form map into the tagged Value union,
// dropping any object key that starts with a store operator or matches a
// prototype-pollution name, recursively. String values pass through verbatim.
func SanitizeData(raw interface{}) map[string]models.Value {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}
	v, ok := sanitizeValue(m, 0)
	if !ok || len(v.Map) == 0 {
		return nil
	}
	return v.Map
}

func sanitizeValue(raw interface{}, depth int) (models.Value, bool) {
	if depth > maxDataDepth {
		return models.Value{}, false
	}
	switch v := raw.(type) {
	case nil:
		return models.NullValue(), true
	case string:
		return models.StringValue(boundedText(v)), true
	case bool:
		return models.BoolValue(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return models.Value{}, false
		}
		return models.NumberValue(f), true
	case float64:
		return models.NumberValue(v), true
	case []interface{}:
		out := models.Value{Kind: models.ValueList}
		for _, el := range v {
			sv, ok := sanitizeValue(el, depth+1)
			if !ok {
				continue
			}
			out.List = append(out.List, sv)
		}
		return out, true
	case map[string]interface{}:
		out := models.Value{Kind: models.ValueMap, Map: make(map[string]models.Value, len(v))}
		for k, el := range v {
			if strings.HasPrefix(k, operatorPrefix) || pollutedKeys[k] {
				continue
			}
			sv, ok := sanitizeValue(el, depth+1)
			if !ok {
				continue
			}
			out.Map[k] = sv
		}
		return out, true
	}
	return models.Value{}, false
}
